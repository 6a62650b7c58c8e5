package commands

import (
	"encoding/json"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/datastep-labs/datastep/pkg/core"
)

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	var downstream bool

	cmd := &cobra.Command{
		Use:   "run <step-id>",
		Short: "Execute a step",
		Long: `Execute a step against its resolved source dataset. With --downstream,
every step transitively sourcing from it re-executes afterwards, in
pipeline order. Partial cascade failure is reported step by step; steps
completed before a failure keep their new results.`,
		Example: `  # Execute one step
  datastep run <step-id>

  # Execute a step and its dependents
  datastep run <step-id> --downstream

  # Machine-readable report
  datastep run <step-id> --downstream --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			result, execErr := cmdCtx.Engine.ExecuteStep(cmd.Context(), args[0], downstream)
			if result != nil {
				if err := printExecution(cmd, cmdCtx, result); err != nil {
					return err
				}
			}
			return execErr
		},
	}

	cmd.Flags().BoolVar(&downstream, "downstream", false, "Also re-execute dependent steps")
	return cmd
}

func printExecution(cmd *cobra.Command, cmdCtx *CommandContext, result *core.ExecutionResult) error {
	if cmdCtx.Cfg.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Step", "Name", "Status", "Rows", "Error"})
	for _, o := range result.Outcomes {
		t.AppendRow(table.Row{o.StepID, o.Name, o.Status, o.RowCount, o.Error})
	}
	t.Render()

	completed := len(result.Completed())
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d of %d step(s) completed\n", completed, len(result.Outcomes))
	return nil
}
