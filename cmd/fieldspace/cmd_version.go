package main

import (
	"encoding/json"
	"fmt"

	"github.com/nvandessel/fieldspace/internal/constants"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    date,
					"axiom":   constants.GenesisAxiom,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fieldspace version %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}
