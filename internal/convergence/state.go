package convergence

import (
	"github.com/nvandessel/fieldspace/internal/history"
)

// State is the single mutable record a run threads through every step.
type State struct {
	// Tension is the convergence metric. It never increases while the
	// state is not yet coherent.
	Tension float64

	// RecursionIndex points into the digit table, in [0, len(table)).
	RecursionIndex int

	// Log holds operator names and decay notices in append order.
	Log *history.Ring

	// OperatorCount is the number of operators synthesized so far.
	OperatorCount int

	// Iterations counts the steps taken.
	Iterations int

	// Variables and Clauses are zero-filled buffers sized from the run
	// inputs. Nothing reads them.
	Variables []float64
	Clauses   []float64
}

// NewState creates a state at recursion index 0 with the given tension.
// Negative buffer sizes are treated as zero.
func NewState(tension float64, variables, clauses, historyCapacity int) *State {
	return &State{
		Tension:   tension,
		Log:       history.NewRing(historyCapacity),
		Variables: make([]float64, max(variables, 0)),
		Clauses:   make([]float64, max(clauses, 0)),
	}
}

// Report summarizes the state as the flat final report.
func (s *State) Report() Report {
	return Report{
		FinalTension:  s.Tension,
		OperatorCount: s.OperatorCount,
		HistoryLength: s.Log.Total(),
	}
}

// Report is the final result of a run.
type Report struct {
	FinalTension  float64 `json:"final_tension"`
	OperatorCount int     `json:"operator_count"`
	HistoryLength int     `json:"history_length"`
}
