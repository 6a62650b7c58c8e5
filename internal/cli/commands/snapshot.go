package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewSnapshotCommand creates the snapshot command group.
func NewSnapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save, list, and revert pipeline snapshots",
		Long: `Snapshots capture the ordered step definitions of a session (types,
configs, positions, sources) without results. Reverting restores the
structure; restored steps come back pending and need re-execution.`,
	}
	cmd.AddCommand(newSnapshotSaveCommand())
	cmd.AddCommand(newSnapshotListCommand())
	cmd.AddCommand(newSnapshotRevertCommand())
	return cmd
}

func newSnapshotSaveCommand() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Snapshot the session's current step definitions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			snap, err := cmdCtx.Engine.SaveSnapshot(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved snapshot %d (%d steps)\n",
				snap.Seq, len(snap.Definitions))
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newSnapshotListCommand() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a session's snapshot history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			snaps, err := cmdCtx.Engine.ListSnapshots(cmd.Context(), sessionID)
			if err != nil {
				return err
			}

			if cmdCtx.Cfg.JSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snaps)
			}

			if len(snaps) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No snapshots.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Seq", "Steps", "Created"})
			for _, s := range snaps {
				t.AppendRow(table.Row{s.Seq, len(s.Definitions), s.CreatedAt.Format(time.RFC3339)})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newSnapshotRevertCommand() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "revert <seq>",
		Short: "Revert the session to a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid snapshot seq %q", args[0])
			}

			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cmdCtx.Engine.Revert(cmd.Context(), sessionID, seq); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Reverted session %s to snapshot %d\n", sessionID, seq)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}
