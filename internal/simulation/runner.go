package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nvandessel/fieldspace/internal/convergence"
	"github.com/nvandessel/fieldspace/internal/logging"
	"github.com/nvandessel/fieldspace/internal/store"
)

// ErrNegativeInput is returned when a request carries a negative size.
var ErrNegativeInput = errors.New("inputs must be non-negative")

// Options holds the collaborators of a Runner. Every field is optional.
type Options struct {
	// Store persists runs with Save set. A nil store disables persistence.
	Store store.RunStore

	// Logger receives completion and per-step messages. Defaults to a
	// discarding logger.
	Logger *slog.Logger

	// Tracer receives the JSONL step trace. Nil disables tracing.
	Tracer *logging.StepTracer

	// Tail is how many trailing log entries a saved run keeps.
	Tail int

	// SeedSource supplies a seed when a request has neither a tension nor a
	// seed. Defaults to the wall clock.
	SeedSource func() int64
}

// Runner executes convergence runs against one engine configuration.
// It is safe for concurrent use.
type Runner struct {
	cfg        convergence.Config
	store      store.RunStore
	logger     *slog.Logger
	tracer     *logging.StepTracer
	tail       int
	seedSource func() int64
}

// NewRunner validates cfg and creates a runner.
func NewRunner(cfg convergence.Config, opts Options) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid convergence config: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.SeedSource == nil {
		opts.SeedSource = func() int64 { return time.Now().UnixNano() }
	}
	return &Runner{
		cfg:        cfg,
		store:      opts.Store,
		logger:     opts.Logger,
		tracer:     opts.Tracer,
		tail:       max(opts.Tail, 0),
		seedSource: opts.SeedSource,
	}, nil
}

// Config returns the engine configuration runs start from.
func (r *Runner) Config() convergence.Config {
	return r.cfg
}

// Request describes one run.
type Request struct {
	Variables int
	Clauses   int

	// Tension is the initial tension. When nil it is drawn from Seed.
	Tension *float64

	// Seed drives the tension draw. When nil the runner's seed source is used.
	Seed *int64

	// MaxIterations overrides the configured cap when positive.
	MaxIterations int

	// Save persists the run to the runner's store.
	Save bool

	// RecordSteps keeps every StepEvent in the outcome.
	RecordSteps bool
}

// Validate rejects negative sizes and overrides.
func (req Request) Validate() error {
	if req.Variables < 0 || req.Clauses < 0 {
		return fmt.Errorf("%w: variables=%d clauses=%d", ErrNegativeInput, req.Variables, req.Clauses)
	}
	if req.MaxIterations < 0 {
		return fmt.Errorf("%w: max iterations=%d", ErrNegativeInput, req.MaxIterations)
	}
	return nil
}

// Outcome is the result of Execute.
type Outcome struct {
	// Run is the record of the run, filled in whether or not it was saved.
	Run store.Run

	// Result is the raw engine result, including the final state.
	Result convergence.Result

	// Saved reports whether Run was written to the store.
	Saved bool

	// Steps holds every step when the request asked for them.
	Steps []convergence.StepEvent
}

// Execute runs the loop for req and, when asked, saves the run.
// The run ID is assigned before the loop starts so that logs and traces
// carry the same ID as the stored record.
func (r *Runner) Execute(ctx context.Context, req Request) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tension, seed, err := convergence.ResolveTension(req.Tension, req.Seed, r.seedSource())
	if err != nil {
		return nil, err
	}

	cfg := r.cfg
	if req.MaxIterations > 0 {
		cfg.MaxIterations = req.MaxIterations
	}

	id := store.NewRunID()
	var recorder *stepRecorder
	observers := convergence.Observers{
		convergence.LogObserver{Logger: r.logger.With("run_id", id)},
		convergence.TraceObserver{Tracer: r.tracer, RunID: id},
	}
	if req.RecordSteps {
		recorder = &stepRecorder{}
		observers = append(observers, recorder)
	}

	engine, err := convergence.NewEngine(cfg, observers)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("starting run",
		"run_id", id,
		"variables", req.Variables,
		"clauses", req.Clauses,
		"initial_tension", tension,
		"max_iterations", cfg.MaxIterations)

	res := engine.Run(tension, req.Variables, req.Clauses)

	run := store.NewRun(store.RunInput{
		Variables:      req.Variables,
		Clauses:        req.Clauses,
		InitialTension: tension,
		Seed:           seed,
	}, res, r.tail)
	run.ID = id
	run.CreatedAt = time.Now().UTC()

	out := &Outcome{Run: run, Result: res}
	if recorder != nil {
		out.Steps = recorder.steps
	}

	if req.Save && r.store != nil {
		if _, err := r.store.SaveRun(ctx, run); err != nil {
			return out, fmt.Errorf("saving run %s: %w", id, err)
		}
		out.Saved = true
	}

	return out, nil
}

// stepRecorder collects step events for one run.
type stepRecorder struct {
	steps []convergence.StepEvent
}

func (s *stepRecorder) OnStep(ev convergence.StepEvent) { s.steps = append(s.steps, ev) }
func (s *stepRecorder) OnComplete(convergence.Result) {}
