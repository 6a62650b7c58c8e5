package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewSessionCommand creates the session command group.
func NewSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage analysis sessions",
	}
	cmd.AddCommand(newSessionNewCommand())
	cmd.AddCommand(newSessionListCommand())
	cmd.AddCommand(newSessionDeleteCommand())
	return cmd
}

func newSessionNewCommand() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Create a session bound to a source dataset",
		Example: `  # Create a session over a CSV in the data directory
  datastep session new "q3 sales" --source sales.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			session, err := cmdCtx.Engine.CreateSession(cmd.Context(), args[0], source)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created session %s (%s)\n", session.ID, session.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Source dataset path, relative to the data directory")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func newSessionListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			sessions, err := cmdCtx.Engine.ListSessions(cmd.Context())
			if err != nil {
				return err
			}

			if cmdCtx.Cfg.JSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sessions)
			}

			if len(sessions) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No sessions.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Name", "Source", "Created"})
			for _, s := range sessions {
				t.AppendRow(table.Row{s.ID, s.Name, s.SourcePath, s.CreatedAt.Format(time.RFC3339)})
			}
			t.Render()
			return nil
		},
	}
}

func newSessionDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session with its steps and snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cmdCtx.Engine.DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
			return nil
		},
	}
}
