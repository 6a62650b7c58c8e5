package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/datastep-labs/datastep/internal/engine"
	"github.com/datastep-labs/datastep/pkg/core"
)

// NewStepCommand creates the step command group.
func NewStepCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Manage analysis steps",
	}
	cmd.AddCommand(newStepAddCommand())
	cmd.AddCommand(newStepListCommand())
	cmd.AddCommand(newStepUpdateCommand())
	cmd.AddCommand(newStepDeleteCommand())
	cmd.AddCommand(newStepMoveCommand())
	return cmd
}

// readConfigArg parses a step config given inline as JSON or as @file.
func readConfigArg(raw string) (core.StepConfig, error) {
	var cfg core.StepConfig
	if raw == "" {
		return cfg, fmt.Errorf("step config is required")
	}

	data := []byte(raw)
	if strings.HasPrefix(raw, "@") {
		var err error
		data, err = os.ReadFile(strings.TrimPrefix(raw, "@"))
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid step config JSON: %w", err)
	}
	return cfg, nil
}

func newStepAddCommand() *cobra.Command {
	var (
		sessionID string
		stepType  string
		source    string
		cfgArg    string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Append a step to a session's pipeline",
		Long: `Append a step at the end of the pipeline. The config is the JSON payload
matching the step type, inline or from a file with @path.`,
		Example: `  # Add a numeric filter over the original dataset
  datastep step add "big revenue" --session <id> --type filter \
    --json-config '{"filter":{"numeric":{"column":"revenue","filter_type":"greater_than","value":100}}}'

  # Add an aggregation sourcing from an earlier step
  datastep step add "by region" --session <id> --type aggregate \
    --source <step-id> --json-config @aggregate.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfigArg(cfgArg)
			if err != nil {
				return err
			}

			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			step, err := cmdCtx.Engine.AddStep(cmd.Context(), sessionID, engine.AddStepRequest{
				Type:   core.StepType(stepType),
				Name:   args[0],
				Source: source,
				Config: cfg,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added step %s at position %d\n", step.ID, step.Position)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID")
	cmd.Flags().StringVar(&stepType, "type", "", "Step type (filter|aggregate|transform|summary)")
	cmd.Flags().StringVar(&source, "source", "", "Source step ID (default: original dataset)")
	cmd.Flags().StringVar(&cfgArg, "json-config", "", "Step config as JSON, or @file")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("json-config")
	return cmd
}

func newStepListCommand() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a session's steps in pipeline order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			steps, err := cmdCtx.Engine.ListSteps(cmd.Context(), sessionID)
			if err != nil {
				return err
			}

			if cmdCtx.Cfg.JSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(steps)
			}

			if len(steps) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No steps.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Pos", "ID", "Type", "Name", "Source", "Status", "Rows"})
			for _, s := range steps {
				rows := "-"
				if s.Result != nil {
					rows = fmt.Sprintf("%d", s.Result.RowCount)
				}
				t.AppendRow(table.Row{s.Position, s.ID, s.Type, s.Name, s.Source, s.Status, rows})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newStepUpdateCommand() *cobra.Command {
	var (
		cfgArg  string
		cascade bool
	)

	cmd := &cobra.Command{
		Use:   "update <step-id>",
		Short: "Replace a step's configuration",
		Long: `Replace a step's configuration. The step and its dependents are demoted
to pending; with --cascade they are re-executed immediately.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfigArg(cfgArg)
			if err != nil {
				return err
			}

			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := cmdCtx.Engine.UpdateStepConfig(cmd.Context(), args[0], cfg, cascade)
			if err != nil {
				return err
			}
			if result != nil {
				return printExecution(cmd, cmdCtx, result)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Updated step %s (dependents pending)\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&cfgArg, "json-config", "", "Step config as JSON, or @file")
	cmd.Flags().BoolVar(&cascade, "cascade", false, "Re-execute the step and its dependents")
	_ = cmd.MarkFlagRequired("json-config")
	return cmd
}

func newStepDeleteCommand() *cobra.Command {
	var cascade bool

	cmd := &cobra.Command{
		Use:   "delete <step-id>",
		Short: "Delete a step",
		Long: `Delete a step. Direct dependents are re-pointed at the deleted step's own
source and demoted to pending; with --cascade they are re-executed
immediately.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := cmdCtx.Engine.DeleteStep(cmd.Context(), args[0], cascade)
			if err != nil {
				return err
			}
			if result != nil {
				return printExecution(cmd, cmdCtx, result)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted step %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&cascade, "cascade", false, "Re-execute re-pointed dependents")
	return cmd
}

func newStepMoveCommand() *cobra.Command {
	var position int

	cmd := &cobra.Command{
		Use:   "move <step-id>",
		Short: "Move a step to a new position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cmdCtx.Engine.MoveStep(cmd.Context(), args[0], position); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Moved step %s to position %d\n", args[0], position)
			return nil
		},
	}

	cmd.Flags().IntVar(&position, "to", 0, "New 0-based position")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
