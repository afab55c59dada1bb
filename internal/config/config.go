// Package config provides unified configuration loading for fieldspace.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/fieldspace/internal/constants"
	"github.com/nvandessel/fieldspace/internal/convergence"
	"github.com/nvandessel/fieldspace/internal/history"
	"gopkg.in/yaml.v3"
)

// FieldspaceConfig contains all fieldspace configuration settings.
type FieldspaceConfig struct {
	// Loop contains the convergence loop parameters.
	Loop LoopConfig `json:"loop" yaml:"loop"`

	// History controls log retention and display.
	History HistoryConfig `json:"history" yaml:"history"`

	// Logging contains settings for operational logging and step tracing.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// LoopConfig configures the convergence loop.
type LoopConfig struct {
	// MaxIterations caps the number of decay steps per run.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`

	// DecayFactor multiplies the tension on every step. Range: (0,1).
	DecayFactor float64 `json:"decay_factor" yaml:"decay_factor"`

	// Threshold is the coherence bound.
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// HistoryConfig configures the operator log.
type HistoryConfig struct {
	// Capacity is the number of log entries retained per run (0 = all).
	Capacity int `json:"capacity" yaml:"capacity"`

	// Tail is how many of the most recent entries are printed after a run.
	Tail int `json:"tail" yaml:"tail"`
}

// LoggingConfig configures fieldspace's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables step tracing to .fieldspace/steps.jsonl.
	// "trace" additionally logs every step to stderr.
	Level string `json:"level" yaml:"level"`
}

// Default returns a FieldspaceConfig with sensible defaults.
func Default() *FieldspaceConfig {
	return &FieldspaceConfig{
		Loop: LoopConfig{
			MaxIterations: constants.DefaultMaxIterations,
			DecayFactor:   constants.DecayFactor,
			Threshold:     constants.CoherenceThreshold,
		},
		History: HistoryConfig{
			Capacity: history.DefaultCapacity,
			Tail:     constants.DefaultTail,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns ~/.fieldspace/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.StateDirName, "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.fieldspace/config.yaml -> environment variables
func Load() (*FieldspaceConfig, error) {
	config := Default()

	configPath, err := DefaultPath()
	if err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
// Keys absent from the file keep their defaults.
func LoadFromFile(path string) (*FieldspaceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return config, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *FieldspaceConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *FieldspaceConfig) Validate() error {
	if err := c.Engine().Validate(); err != nil {
		return err
	}

	if c.History.Tail < 0 {
		return fmt.Errorf("history tail must be non-negative, got %d", c.History.Tail)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// Engine converts the loop and history settings into a convergence.Config
// over the standard digit table.
func (c *FieldspaceConfig) Engine() convergence.Config {
	cfg := convergence.DefaultConfig()
	cfg.MaxIterations = c.Loop.MaxIterations
	cfg.DecayFactor = c.Loop.DecayFactor
	cfg.Threshold = c.Loop.Threshold
	cfg.HistoryCapacity = c.History.Capacity
	return cfg
}

// applyEnvOverrides applies environment variable overrides to the config.
// Unparseable numeric values are ignored.
func applyEnvOverrides(config *FieldspaceConfig) {
	if v := os.Getenv("FIELDSPACE_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Loop.MaxIterations = n
		}
	}

	if v := os.Getenv("FIELDSPACE_DECAY_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Loop.DecayFactor = f
		}
	}

	if v := os.Getenv("FIELDSPACE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Loop.Threshold = f
		}
	}

	if v := os.Getenv("FIELDSPACE_HISTORY_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.History.Capacity = n
		}
	}

	if v := os.Getenv("FIELDSPACE_TAIL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.History.Tail = n
		}
	}

	if v := os.Getenv("FIELDSPACE_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}
