package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewOverviewCommand creates the overview command.
func NewOverviewCommand() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Describe a session's source dataset and step pipeline",
		Long:  `Read-only introspection: source dataset shape and columns, plus the ordered step list with statuses.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ov, err := cmdCtx.Engine.Overview(cmd.Context(), sessionID)
			if err != nil {
				return err
			}

			if cmdCtx.Cfg.JSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(ov)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Session:  %s (%s)\n", ov.SessionName, ov.SessionID)
			_, _ = fmt.Fprintf(out, "Source:   %s\n", ov.SourcePath)
			_, _ = fmt.Fprintf(out, "Shape:    %d rows x %d columns\n", ov.RowCount, ov.ColumnCount)
			_, _ = fmt.Fprintf(out, "Columns:  %s\n\n", strings.Join(ov.Columns, ", "))

			if len(ov.Steps) == 0 {
				_, _ = fmt.Fprintln(out, "No steps.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(out)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Pos", "Type", "Name", "Source", "Status"})
			for _, s := range ov.Steps {
				t.AppendRow(table.Row{s.Position, s.Type, s.Name, s.Source, s.Status})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}
