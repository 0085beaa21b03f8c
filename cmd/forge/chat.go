package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"forge/internal/config"
	"forge/internal/repl"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	var sessionID, name string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Author an adventure in a line-oriented REPL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, res, err := opts.build()
			if err != nil {
				return err
			}
			defer res.Close()

			input, err := repl.NewLineInput(filepath.Join(cfg.Storage.DataDir, "repl.history"))
			if err != nil {
				return err
			}
			defer input.Close()

			loop := repl.NewLoop(repl.Options{
				Orch:      res.Orch,
				Input:     input,
				Out:       cmd.OutOrStdout(),
				SessionID: sessionID,
				Name:      name,
				Models:    cfg.Provider.Models,
				PersistModel: func(model string) error {
					cwd, err := os.Getwd()
					if err != nil {
						return err
					}
					return config.WriteProviderModel(cwd, model)
				},
				Width: 100,
				Color: repl.UseColor(),
			})
			return loop.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Resume a stored session")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Adventure name for a new session")
	return cmd
}
