package main

import (
	"github.com/spf13/cobra"

	"forge/internal/tui"
)

func newTUICmd(opts *rootOptions) *cobra.Command {
	var sessionID, name string
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Author an adventure in the full-screen terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, res, err := opts.build()
			if err != nil {
				return err
			}
			defer res.Close()

			s, err := openSession(res.Orch, sessionID, name)
			if err != nil {
				return err
			}
			return tui.Run(cmd.Context(), s, res.Model)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Resume a stored session")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Adventure name for a new session")
	return cmd
}
