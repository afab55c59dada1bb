package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/nvandessel/fieldspace/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configKeys lists the settable keys in display order.
var configKeys = []string{
	"loop.max_iterations",
	"loop.decay_factor",
	"loop.threshold",
	"history.capacity",
	"history.tail",
	"logging.level",
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage fieldspace configuration",
		Long: `View and modify fieldspace configuration settings.

Configuration is stored in ~/.fieldspace/config.yaml. FIELDSPACE_* environment
variables (also read from a .env file in the project root) override it.

Examples:
  fieldspace config list                       # Show all settings
  fieldspace config get loop.decay_factor      # Get a specific setting
  fieldspace config set history.tail 10        # Set a setting
  fieldspace config set logging.level debug    # Enable step tracing`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			yamlOut, _ := cmd.Flags().GetBool("yaml")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			w := cmd.OutOrStdout()
			switch {
			case jsonOut:
				return json.NewEncoder(w).Encode(cfg)
			case yamlOut:
				data, err := yaml.Marshal(cfg)
				if err != nil {
					return fmt.Errorf("failed to marshal config: %w", err)
				}
				_, err = w.Write(data)
				return err
			}

			fmt.Fprintln(w, "Configuration (~/.fieldspace/config.yaml):")
			fmt.Fprintln(w)
			for _, key := range configKeys {
				value, _ := getConfigValue(cfg, key)
				fmt.Fprintf(w, "  %-20s %v\n", key+":", value)
			}
			return nil
		},
	}

	cmd.Flags().Bool("yaml", false, "Output as YAML")
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"key":   key,
					"value": value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key, value := args[0], args[1]

			path, err := config.DefaultPath()
			if err != nil {
				return err
			}

			// Start from the file alone so environment overrides are not persisted.
			cfg := config.Default()
			if _, statErr := os.Stat(path); statErr == nil {
				cfg, err = config.LoadFromFile(path)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			}

			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			if err := cfg.Save(path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.FieldspaceConfig, key string) (interface{}, bool) {
	switch key {
	case "loop.max_iterations":
		return cfg.Loop.MaxIterations, true
	case "loop.decay_factor":
		return cfg.Loop.DecayFactor, true
	case "loop.threshold":
		return cfg.Loop.Threshold, true
	case "history.capacity":
		return cfg.History.Capacity, true
	case "history.tail":
		return cfg.History.Tail, true
	case "logging.level":
		return cfg.Logging.Level, true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.FieldspaceConfig, key, value string) error {
	switch key {
	case "loop.max_iterations", "history.capacity", "history.tail":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %q is not an integer", key, value)
		}
		switch key {
		case "loop.max_iterations":
			cfg.Loop.MaxIterations = n
		case "history.capacity":
			cfg.History.Capacity = n
		default:
			cfg.History.Tail = n
		}
	case "loop.decay_factor", "loop.threshold":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %q is not a number", key, value)
		}
		if key == "loop.decay_factor" {
			cfg.Loop.DecayFactor = f
		} else {
			cfg.Loop.Threshold = f
		}
	case "logging.level":
		cfg.Logging.Level = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
