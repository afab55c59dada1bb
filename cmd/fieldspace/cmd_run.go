package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nvandessel/fieldspace/internal/config"
	"github.com/nvandessel/fieldspace/internal/convergence"
	"github.com/nvandessel/fieldspace/internal/logging"
	"github.com/nvandessel/fieldspace/internal/simulation"
	"github.com/nvandessel/fieldspace/internal/store"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [variables] [clauses]",
		Short: "Run the convergence loop once",
		Long: `Run the convergence loop from an initial tension until it falls below
the coherence threshold or the iteration cap is reached.

The variables and clauses counts only size internal buffers; they do not
affect the result. Without --tension the initial tension is drawn from
--seed, or from the clock when no seed is given.

Examples:
  fieldspace run                    # Random tension, saved to .fieldspace/
  fieldspace run 7 12 --seed 42     # Reproducible run
  fieldspace run --tension 0.5      # Explicit starting tension
  fieldspace run --no-save --json   # Print the record without storing it`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			noSave, _ := cmd.Flags().GetBool("no-save")
			tail, _ := cmd.Flags().GetInt("tail")

			req, err := requestFromFlags(cmd, args)
			if err != nil {
				return err
			}
			req.Save = !noSave

			settings, err := loadSettings()
			if err != nil {
				return err
			}
			if tail < 0 {
				tail = settings.History.Tail
			}

			runner, cleanup, err := newCLIRunner(cmd, settings, req.Save, tail)
			if err != nil {
				return err
			}
			defer cleanup()

			out, err := runner.Execute(context.Background(), req)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(runJSON(out))
			}
			printRun(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().Float64("tension", 0, "Initial tension in [0,1) (default: drawn from --seed)")
	cmd.Flags().Int64("seed", 0, "Seed for the initial tension draw (default: clock)")
	cmd.Flags().Int("max-iterations", 0, "Iteration cap for this run (default from config)")
	cmd.Flags().Int("tail", -1, "Number of trailing log entries to show and keep (default from config)")
	cmd.Flags().Bool("no-save", false, "Do not record the run")
	addScopeFlag(cmd)

	return cmd
}

// requestFromFlags builds a run request from positional counts and flags.
func requestFromFlags(cmd *cobra.Command, args []string) (simulation.Request, error) {
	var req simulation.Request

	counts := make([]int, 2)
	for i, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return req, fmt.Errorf("invalid count %q: must be an integer", arg)
		}
		if n < 0 {
			return req, fmt.Errorf("invalid count %d: must be non-negative", n)
		}
		counts[i] = n
	}
	req.Variables, req.Clauses = counts[0], counts[1]

	if cmd.Flags().Changed("tension") {
		t, _ := cmd.Flags().GetFloat64("tension")
		req.Tension = &t
	}
	if cmd.Flags().Changed("seed") {
		s, _ := cmd.Flags().GetInt64("seed")
		req.Seed = &s
	}
	maxIter, _ := cmd.Flags().GetInt("max-iterations")
	if maxIter < 0 {
		return req, fmt.Errorf("invalid --max-iterations %d: must be non-negative", maxIter)
	}
	req.MaxIterations = maxIter

	return req, nil
}

// newCLIRunner wires a runner to the logger, the step tracer, and (when
// saving) the run store. cleanup releases whatever was opened.
func newCLIRunner(cmd *cobra.Command, settings *config.FieldspaceConfig, save bool, tail int) (*simulation.Runner, func(), error) {
	root, _ := cmd.Flags().GetString("root")
	scope, err := scopeFromFlags(cmd)
	if err != nil {
		return nil, nil, err
	}
	stateDir, err := store.StatePath(root, scope)
	if err != nil {
		return nil, nil, err
	}

	opts := simulation.Options{
		Logger: newLogger(cmd, settings),
		Tracer: logging.NewStepTracer(stateDir, settings.Logging.Level),
		Tail:   tail,
	}

	var runStore *store.SQLiteRunStore
	if save {
		runStore, err = store.NewSQLiteRunStore(stateDir)
		if err != nil {
			opts.Tracer.Close()
			return nil, nil, fmt.Errorf("failed to open run store: %w", err)
		}
		opts.Store = runStore
	}

	cleanup := func() {
		opts.Tracer.Close()
		if runStore != nil {
			runStore.Close()
		}
	}

	runner, err := simulation.NewRunner(settings.Engine(), opts)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return runner, cleanup, nil
}

// runOutput is the JSON form of a finished run. The report fields sit at
// the top level, followed by the run metadata.
type runOutput struct {
	convergence.Report

	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Variables      int       `json:"variables"`
	Clauses        int       `json:"clauses"`
	InitialTension float64   `json:"initial_tension"`
	Seed           *int64    `json:"seed,omitempty"`
	Iterations     int       `json:"iterations"`
	Converged      bool      `json:"converged"`
	RecentLog      []string  `json:"recent_log,omitempty"`
	Saved          bool      `json:"saved"`
}

func runJSON(out *simulation.Outcome) runOutput {
	run := out.Run
	return runOutput{
		Report:         run.Report,
		ID:             run.ID,
		CreatedAt:      run.CreatedAt,
		Variables:      run.Variables,
		Clauses:        run.Clauses,
		InitialTension: run.InitialTension,
		Seed:           run.Seed,
		Iterations:     run.Iterations,
		Converged:      run.Converged,
		RecentLog:      run.RecentLog,
		Saved:          out.Saved,
	}
}

// printRun writes the human-readable summary of a run.
func printRun(w io.Writer, out *simulation.Outcome) {
	run := out.Run

	fmt.Fprintf(w, "Initial tension: %.6f", run.InitialTension)
	if run.Seed != nil {
		fmt.Fprintf(w, " (seed %d)", *run.Seed)
	}
	fmt.Fprintln(w)

	if run.Converged {
		fmt.Fprintf(w, "Coherence reached after %d iterations.\n", run.Iterations)
	} else {
		fmt.Fprintf(w, "Iteration cap reached after %d iterations; tension is still above the threshold.\n", run.Iterations)
	}

	if len(run.RecentLog) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Recent log:")
		for _, entry := range run.RecentLog {
			fmt.Fprintf(w, "  %s\n", entry)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Report:")
	fmt.Fprintf(w, "  final_tension:  %.6f\n", run.Report.FinalTension)
	fmt.Fprintf(w, "  operator_count: %d\n", run.Report.OperatorCount)
	fmt.Fprintf(w, "  history_length: %d\n", run.Report.HistoryLength)

	if out.Saved {
		fmt.Fprintf(w, "\nSaved as %s\n", run.ID)
	}
}
