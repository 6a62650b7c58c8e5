package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	cliconfig "github.com/datastep-labs/datastep/internal/cli/config"
	"github.com/datastep-labs/datastep/internal/config"
	"github.com/datastep-labs/datastep/internal/dataframe"
	"github.com/datastep-labs/datastep/internal/engine"
	"github.com/datastep-labs/datastep/internal/state"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
	Engine *engine.Engine
}

// NewCommandContext creates a CommandContext with an engine wired to the
// configured state database and data directory. The returned cleanup must
// be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := getConfig()
	logger := newLogger(cfg)

	if dir := filepath.Dir(cfg.StatePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore()
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	eng, err := engine.New(engine.Config{
		Store:   store,
		Frames:  dataframe.NewLocalStore(cfg.DataDir, logger),
		Timeout: time.Duration(cfg.TimeoutMinutes) * time.Minute,
		Logger:  logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	cleanup := func() { _ = store.Close() }
	return &CommandContext{Cfg: cfg, Logger: logger, Engine: eng}, cleanup, nil
}

// getConfig returns the loaded configuration, falling back to defaults
// when no load has happened (e.g. a command invoked directly in tests).
func getConfig() *config.Config {
	if cfg := cliconfig.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	return cfg
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
