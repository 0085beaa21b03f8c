package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"forge/internal/present"
	"forge/internal/snapshot"
	"forge/internal/storage"
)

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"ls"},
		Short:   "List, show and delete stored sessions",
	}
	cmd.AddCommand(newSessionsListCmd(opts), newSessionsShowCmd(opts), newSessionsRmCmd(opts))
	return cmd
}

func newSessionsListCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, res, err := opts.build()
			if err != nil {
				return err
			}
			defer res.Close()

			metas, err := res.Orch.List()
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			return writeSessionList(cmd.OutOrStdout(), metas, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text or json")
	return cmd
}

func writeSessionList(w io.Writer, metas []storage.SessionMeta, format string) error {
	switch format {
	case "json":
		if metas == nil {
			metas = []storage.SessionMeta{}
		}
		b, err := json.MarshalIndent(metas, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case "text", "":
		if len(metas) == 0 {
			_, err := fmt.Fprintln(w, "No saved sessions")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tSTAGE\tUPDATED")
		for _, m := range metas {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.AdventureName, m.Stage, m.UpdatedAt.Local().Format(time.DateTime))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format %q (want text or json)", format)
	}
}

func newSessionsShowCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one session snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, res, err := opts.build()
			if err != nil {
				return err
			}
			defer res.Close()

			s, err := res.Orch.Session(args[0])
			if err != nil {
				return err
			}
			return writeSnapshot(cmd.OutOrStdout(), s.View(), format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json, yaml or markdown")
	return cmd
}

func writeSnapshot(w io.Writer, snap snapshot.Snapshot, format string) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case "json", "":
		data, err = snapshot.Encode(snap)
	case "yaml":
		data, err = snapshot.YAML(snap)
	case "markdown", "md":
		data = []byte(present.State(snap))
	default:
		return fmt.Errorf("unknown format %q (want json, yaml or markdown)", format)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func newSessionsRmCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, res, err := opts.build()
			if err != nil {
				return err
			}
			defer res.Close()

			if err := res.Orch.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
