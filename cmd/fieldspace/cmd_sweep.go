package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nvandessel/fieldspace/internal/constants"
	"github.com/nvandessel/fieldspace/internal/simulation"
	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep [variables] [clauses]",
		Short: "Run the loop once per seed and summarize",
		Long: `Run the convergence loop once per seed and summarize how many
iterations each run needed and where its tension ended.

Seeds come from --seeds, or from --count consecutive values starting at
--start. Runs are not recorded unless --save is given.

Examples:
  fieldspace sweep --seeds 1,2,3
  fieldspace sweep --count 50 --start 1000 --json`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			save, _ := cmd.Flags().GetBool("save")

			req, err := requestFromFlags(cmd, args)
			if err != nil {
				return err
			}
			req.Save = save

			seeds, err := seedsFromFlags(cmd)
			if err != nil {
				return err
			}

			settings, err := loadSettings()
			if err != nil {
				return err
			}

			runner, cleanup, err := newCLIRunner(cmd, settings, save, settings.History.Tail)
			if err != nil {
				return err
			}
			defer cleanup()

			summary, outcomes, err := runner.Sweep(context.Background(), req, seeds)
			if err != nil {
				return err
			}

			if jsonOut {
				runs := make([]runOutput, 0, len(outcomes))
				for _, out := range outcomes {
					runs = append(runs, runJSON(out))
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"summary": summary,
					"runs":    runs,
				})
			}
			printSweep(cmd.OutOrStdout(), summary, outcomes)
			return nil
		},
	}

	cmd.Flags().Int64Slice("seeds", nil, "Explicit seeds, comma separated")
	cmd.Flags().Int("count", 10, "Number of consecutive seeds when --seeds is not given")
	cmd.Flags().Int64("start", 1, "First seed when --seeds is not given")
	cmd.Flags().Int("max-iterations", 0, "Iteration cap for every run (default from config)")
	cmd.Flags().Bool("save", false, "Record every run of the sweep")
	addScopeFlag(cmd)

	return cmd
}

// seedsFromFlags resolves the seed list from --seeds or --count/--start.
func seedsFromFlags(cmd *cobra.Command) ([]int64, error) {
	if cmd.Flags().Changed("seeds") {
		seeds, _ := cmd.Flags().GetInt64Slice("seeds")
		if len(seeds) == 0 {
			return nil, fmt.Errorf("--seeds must list at least one seed")
		}
		if len(seeds) > constants.MaxSweepSeeds {
			return nil, fmt.Errorf("too many seeds: %d (max %d)", len(seeds), constants.MaxSweepSeeds)
		}
		return seeds, nil
	}

	count, _ := cmd.Flags().GetInt("count")
	start, _ := cmd.Flags().GetInt64("start")
	if count <= 0 || count > constants.MaxSweepSeeds {
		return nil, fmt.Errorf("invalid --count %d: must be between 1 and %d", count, constants.MaxSweepSeeds)
	}
	seeds := make([]int64, count)
	for i := range seeds {
		seeds[i] = start + int64(i)
	}
	return seeds, nil
}

// printSweep writes one line per run followed by the summary.
func printSweep(w io.Writer, summary simulation.SweepSummary, outcomes []*simulation.Outcome) {
	fmt.Fprintf(w, "%-12s %-10s %-10s %-10s %s\n", "SEED", "TENSION", "ITERS", "OPERATORS", "FINAL")
	for _, out := range outcomes {
		seed := "-"
		if out.Run.Seed != nil {
			seed = fmt.Sprintf("%d", *out.Run.Seed)
		}
		fmt.Fprintf(w, "%-12s %-10.6f %-10d %-10d %.6f\n",
			seed, out.Run.InitialTension, out.Run.Iterations, out.Run.Report.OperatorCount, out.Run.Report.FinalTension)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Runs:            %d (%d converged)\n", summary.Runs, summary.Converged)
	fmt.Fprintf(w, "Iterations:      min %d, max %d, mean %.1f\n", summary.MinIterations, summary.MaxIterations, summary.MeanIterations)
	fmt.Fprintf(w, "Mean final:      %.6f\n", summary.MeanFinalTension)
	fmt.Fprintf(w, "Total operators: %d\n", summary.TotalOperators)
}
