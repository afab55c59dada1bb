package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/nvandessel/fieldspace/internal/config"
	"github.com/nvandessel/fieldspace/internal/constants"
	"github.com/nvandessel/fieldspace/internal/logging"
	"github.com/nvandessel/fieldspace/internal/store"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fieldspace",
		Short: "Fieldspace - tension decay convergence loop",
		Long: `fieldspace runs a convergence loop over a fixed digit table.

Every step advances a cyclic index into the table, synthesizes a named
operator for digits divisible by 3 or 5, and multiplies the tension by 0.95
until it falls below 0.1. Runs are recorded in .fieldspace/fieldspace.db.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			loadDotEnv(root)
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newSweepCmd(),
		newRunsCmd(),
		newShowCmd(),
		newForgetCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newTableCmd(),
		newAxiomCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

// loadDotEnv loads <root>/.env without overriding variables already set.
// A missing file is not an error.
func loadDotEnv(root string) {
	_ = godotenv.Load(filepath.Join(root, ".env"))
}

// loadSettings loads and validates the configuration.
func loadSettings() (*config.FieldspaceConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// scopeFromFlags reads the --scope flag.
func scopeFromFlags(cmd *cobra.Command) (constants.Scope, error) {
	value, _ := cmd.Flags().GetString("scope")
	scope := constants.Scope(value)
	if !scope.Valid() {
		return "", fmt.Errorf("invalid scope: %q (valid: local, global)", value)
	}
	return scope, nil
}

// openRunStore opens the run store selected by --root and --scope.
func openRunStore(cmd *cobra.Command) (*store.SQLiteRunStore, error) {
	root, _ := cmd.Flags().GetString("root")
	scope, err := scopeFromFlags(cmd)
	if err != nil {
		return nil, err
	}
	s, err := store.OpenRunStore(root, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return s, nil
}

// newLogger builds the stderr logger for the configured level.
func newLogger(cmd *cobra.Command, settings *config.FieldspaceConfig) *slog.Logger {
	return logging.NewLogger(settings.Logging.Level, cmd.ErrOrStderr())
}

// addScopeFlag registers --scope on commands that touch the run store.
func addScopeFlag(cmd *cobra.Command) {
	cmd.Flags().String("scope", string(constants.ScopeLocal), "Run store scope: local (project) or global (home directory)")
}
