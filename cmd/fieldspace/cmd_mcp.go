package main

import (
	"context"
	"fmt"

	"github.com/nvandessel/fieldspace/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve fieldspace tools over MCP (stdio)",
		Long: `Start a Model Context Protocol server on stdin/stdout.

Tools: fieldspace_run, fieldspace_sweep, fieldspace_runs, fieldspace_show,
fieldspace_table. Resources: fieldspace://table and fieldspace://runs/{id}.
Tool calls are recorded in .fieldspace/audit.jsonl.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")

			scope, err := scopeFromFlags(cmd)
			if err != nil {
				return err
			}
			settings, err := loadSettings()
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "fieldspace",
				Version:  version,
				Root:     root,
				Scope:    scope,
				Settings: settings,
				Logger:   newLogger(cmd, settings),
			})
			if err != nil {
				return fmt.Errorf("failed to start MCP server: %w", err)
			}
			defer server.Close()

			return server.Run(context.Background())
		},
	}

	addScopeFlag(cmd)
	return cmd
}
