// Package convergence implements the tension decay loop.
//
// A run walks a fixed digit table one position per step. Digits divisible
// by 3 or 5 synthesize a named operator into the log, and every step
// multiplies the tension by a constant factor until it falls below the
// coherence threshold or the iteration cap is reached.
package convergence

import (
	"errors"
	"fmt"

	"github.com/nvandessel/fieldspace/internal/constants"
	"github.com/nvandessel/fieldspace/internal/history"
)

// ErrEmptyTable is returned by NewEngine when the digit table has no entries.
var ErrEmptyTable = errors.New("digit table must not be empty")

// Config holds parameters for the convergence loop.
type Config struct {
	// Table is the digit sequence walked by the recursion index.
	Table []int

	// DecayFactor multiplies the tension on every step. Must be in (0,1).
	DecayFactor float64

	// Threshold is the coherence bound: the loop stops once tension < Threshold.
	Threshold float64

	// MaxIterations caps the number of steps per run.
	MaxIterations int

	// HistoryCapacity bounds how many log entries are retained (0 = all).
	HistoryCapacity int
}

// DefaultConfig returns the standard loop parameters.
func DefaultConfig() Config {
	return Config{
		Table:           DigitTable,
		DecayFactor:     constants.DecayFactor,
		Threshold:       constants.CoherenceThreshold,
		MaxIterations:   constants.DefaultMaxIterations,
		HistoryCapacity: history.DefaultCapacity,
	}
}

// Validate checks that the configuration can drive a loop.
func (c Config) Validate() error {
	if len(c.Table) == 0 {
		return ErrEmptyTable
	}
	if c.DecayFactor <= 0 || c.DecayFactor >= 1 {
		return fmt.Errorf("decay factor must be in (0,1), got %v", c.DecayFactor)
	}
	if c.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %v", c.Threshold)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive, got %d", c.MaxIterations)
	}
	if c.HistoryCapacity < 0 {
		return fmt.Errorf("history capacity must be non-negative, got %d", c.HistoryCapacity)
	}
	return nil
}

// Engine runs the convergence loop. It is immutable after construction
// and may be shared; every Run owns its own State.
type Engine struct {
	cfg      Config
	observer Observer
}

// NewEngine creates an engine. observer may be nil.
func NewEngine(cfg Config, observer Observer) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid convergence config: %w", err)
	}
	table := make([]int, len(cfg.Table))
	copy(table, cfg.Table)
	cfg.Table = table
	return &Engine{cfg: cfg, observer: observer}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// NewState creates a fresh state sized by the engine's history capacity.
func (e *Engine) NewState(tension float64, variables, clauses int) *State {
	return NewState(tension, variables, clauses, e.cfg.HistoryCapacity)
}

// Coherent reports whether the state's tension is below the threshold.
func (e *Engine) Coherent(s *State) bool {
	return s.Tension < e.cfg.Threshold
}

// Step advances the state by one iteration: move the recursion index,
// classify the digit it lands on, and decay the tension unless the state is
// already coherent.
func (e *Engine) Step(s *State) StepEvent {
	s.RecursionIndex = (s.RecursionIndex + 1) % len(e.cfg.Table)
	digit := e.cfg.Table[s.RecursionIndex]

	ev := StepEvent{
		Iteration:     s.Iterations + 1,
		Index:         s.RecursionIndex,
		Digit:         digit,
		TensionBefore: s.Tension,
	}

	if label := Classify(digit); label != LabelNone {
		name := OperatorName(label, s.OperatorCount)
		s.Log.Append(name)
		s.OperatorCount++
		ev.Label = label
		ev.Operator = name
	}

	if !e.Coherent(s) {
		s.Tension *= e.cfg.DecayFactor
		s.Log.Append(constants.TensionReducedEntry)
	}

	s.Iterations++
	ev.TensionAfter = s.Tension
	ev.Fitness = ev.TensionBefore - ev.TensionAfter
	return ev
}

// Result is the outcome of a run.
type Result struct {
	State      *State
	Report     Report
	Converged  bool
	Iterations int
}

// Run executes the loop from the given initial tension until coherence or
// the iteration cap. initialVariables and initialClauses only size the
// state's buffers.
func (e *Engine) Run(initialTension float64, initialVariables, initialClauses int) Result {
	s := e.NewState(initialTension, initialVariables, initialClauses)

	for !e.Coherent(s) && s.Iterations < e.cfg.MaxIterations {
		ev := e.Step(s)
		if e.observer != nil {
			e.observer.OnStep(ev)
		}
	}

	res := Result{
		State:      s,
		Report:     s.Report(),
		Converged:  e.Coherent(s),
		Iterations: s.Iterations,
	}
	if e.observer != nil {
		e.observer.OnComplete(res)
	}
	return res
}
