package main

import (
	"github.com/spf13/cobra"

	"forge/internal/mcpserver"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	var sessionID, name string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Expose one session's authoring tools over MCP stdio",
		Long:  "Run an MCP server on stdin/stdout. Every authoring tool of the session is an MCP tool and the session snapshot is a resource. Logs go to stderr.",
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
			logger := opts.logger()
			logger.Printf("mcp: serving session %s", s.ID())
			return mcpserver.Run(cmd.Context(), mcpserver.New(s, version, logger))
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session to serve (default: a new one)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Adventure name for a new session")
	return cmd
}
