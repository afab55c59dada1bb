package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nvandessel/fieldspace/internal/constants"
	"github.com/nvandessel/fieldspace/internal/store"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			runStore, err := openRunStore(cmd)
			if err != nil {
				return err
			}
			defer runStore.Close()

			runs, err := runStore.ListRuns(context.Background(), limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if jsonOut {
				if runs == nil {
					runs = []store.Run{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"runs":  runs,
					"count": len(runs),
				})
			}

			w := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(w, "No runs recorded. Use 'fieldspace run' to start one.")
				return nil
			}
			fmt.Fprintf(w, "%-40s %-20s %-10s %-6s %s\n", "ID", "CREATED", "TENSION", "ITERS", "FINAL")
			for _, run := range runs {
				status := ""
				if !run.Converged {
					status = " (capped)"
				}
				fmt.Fprintf(w, "%-40s %-20s %-10.6f %-6d %.6f%s\n",
					run.ID, run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					run.InitialTension, run.Iterations, run.Report.FinalTension, status)
			}
			fmt.Fprintf(w, "\n%d run(s)\n", len(runs))
			return nil
		},
	}

	cmd.Flags().Int("limit", constants.DefaultListLimit, "Maximum number of runs to list (0 = all)")
	addScopeFlag(cmd)

	return cmd
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			id := args[0]

			runStore, err := openRunStore(cmd)
			if err != nil {
				return err
			}
			defer runStore.Close()

			run, err := runStore.GetRun(context.Background(), id)
			if err != nil {
				if errors.Is(err, store.ErrRunNotFound) {
					return fmt.Errorf("run not found: %s", id)
				}
				return fmt.Errorf("failed to get run: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(run)
			}
			printStoredRun(cmd.OutOrStdout(), run)
			return nil
		},
	}

	addScopeFlag(cmd)
	return cmd
}

func newForgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forget <run-id>",
		Short: "Delete a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			force, _ := cmd.Flags().GetBool("force")
			id := args[0]
			w := cmd.OutOrStdout()

			runStore, err := openRunStore(cmd)
			if err != nil {
				return err
			}
			defer runStore.Close()

			ctx := context.Background()
			if _, err := runStore.GetRun(ctx, id); err != nil {
				if errors.Is(err, store.ErrRunNotFound) {
					return fmt.Errorf("run not found: %s", id)
				}
				return fmt.Errorf("failed to get run: %w", err)
			}

			// Confirm unless --force. With --json the prompt goes to stderr
			// so stdout stays a single JSON document.
			if !force {
				prompt := w
				if jsonOut {
					prompt = cmd.ErrOrStderr()
				}
				fmt.Fprintf(prompt, "Forget run: %s\n", id)
				fmt.Fprint(prompt, "\nConfirm? [y/N]: ")
				if !confirmed(cmd.InOrStdin()) {
					if jsonOut {
						return json.NewEncoder(w).Encode(map[string]interface{}{
							"status": "cancelled",
							"id":     id,
						})
					}
					fmt.Fprintln(w, "Cancelled.")
					return nil
				}
			}

			if err := runStore.DeleteRun(ctx, id); err != nil {
				return fmt.Errorf("failed to delete run: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(w).Encode(map[string]interface{}{
					"status": "forgotten",
					"id":     id,
				})
			}
			fmt.Fprintf(w, "Run %s has been forgotten.\n", id)
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "Skip confirmation prompt")
	addScopeFlag(cmd)

	return cmd
}

// confirmed reads a y/yes answer from r.
func confirmed(r io.Reader) bool {
	response, _ := bufio.NewReader(r).ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// printStoredRun writes the full details of a recorded run.
func printStoredRun(w io.Writer, run *store.Run) {
	fmt.Fprintf(w, "Run: %s\n", run.ID)
	fmt.Fprintf(w, "Created:         %s\n", run.CreatedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "Inputs:          %d variables, %d clauses\n", run.Variables, run.Clauses)
	fmt.Fprintf(w, "Initial tension: %.6f", run.InitialTension)
	if run.Seed != nil {
		fmt.Fprintf(w, " (seed %d)", *run.Seed)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Iterations:      %d (converged: %t)\n", run.Iterations, run.Converged)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Report:")
	fmt.Fprintf(w, "  final_tension:  %.6f\n", run.Report.FinalTension)
	fmt.Fprintf(w, "  operator_count: %d\n", run.Report.OperatorCount)
	fmt.Fprintf(w, "  history_length: %d\n", run.Report.HistoryLength)

	if len(run.RecentLog) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Recent log:")
		for _, entry := range run.RecentLog {
			fmt.Fprintf(w, "  %s\n", entry)
		}
	}
}
