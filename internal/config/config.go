// Package config provides shared configuration types for DataStep.
// This package is decoupled from CLI concerns so other embedders can load
// project configuration without pulling in cobra.
package config

// Config holds all project configuration options.
type Config struct {
	// DataDir is the root directory for source datasets and step results.
	DataDir string `koanf:"data_dir"`
	// StatePath is the path to the SQLite state database.
	StatePath string `koanf:"state_path"`
	// TimeoutMinutes bounds one execution including its cascade.
	TimeoutMinutes int `koanf:"timeout_minutes"`
	// Verbose enables debug logging.
	Verbose bool `koanf:"verbose"`
	// JSON switches listings and run reports to machine-readable output.
	JSON bool `koanf:"json"`
}

// Default configuration values.
const (
	DefaultDataDir        = "data"
	DefaultStateFile      = ".datastep/state.db"
	DefaultTimeoutMinutes = 10
)

// ApplyDefaults fills zero-valued fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.StatePath == "" {
		c.StatePath = DefaultStateFile
	}
	if c.TimeoutMinutes <= 0 {
		c.TimeoutMinutes = DefaultTimeoutMinutes
	}
}
