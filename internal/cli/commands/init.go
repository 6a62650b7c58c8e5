package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/datastep-labs/datastep/internal/config"
)

const configTemplate = `# DataStep project configuration
data_dir: data
state_path: .datastep/state.db
timeout_minutes: 10
`

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new DataStep project",
		Long: `Initialize a new DataStep project with default directory structure and
configuration.

This creates:
  - data/ directory for source datasets and step results
  - .datastep/ directory for the state database
  - datastep.yaml configuration file`,
		Example: `  # Initialize in current directory
  datastep init

  # Initialize in a new directory
  datastep init my-analysis

  # Force overwrite existing config
  datastep init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	return cmd
}

func runInit(cmd *cobra.Command, dir string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, "datastep.yaml")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("datastep.yaml already exists. Use --force to overwrite")
	}

	for _, sub := range []string{config.DefaultDataDir, ".datastep"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o750); err != nil {
			return fmt.Errorf("failed to create %s: %w", sub, err)
		}
	}

	if err := os.WriteFile(configPath, []byte(configTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, "Initialized DataStep project:")
	_, _ = fmt.Fprintln(out, "  datastep.yaml")
	_, _ = fmt.Fprintln(out, "  data/")
	_, _ = fmt.Fprintln(out, "  .datastep/")
	return nil
}
