package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Import legacy JSON session files",
		Long:  "Import one-file-per-session JSON documents into the session store. Sessions that already exist are skipped.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			cfg.Storage.ImportDir = args[0]
			res, err := opts.buildWith(cfg)
			if err != nil {
				return err
			}
			defer res.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "{\"ok\":true,\"imported\":%d}\n", res.Imported)
			return nil
		},
	}
}
