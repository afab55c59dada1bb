// Package constants provides named constants used throughout the fieldspace codebase.
// This centralizes magic numbers for better maintainability and documentation.
package constants

// Convergence loop constants
const (
	// DecayFactor is the multiplicative factor applied to tension on every step.
	DecayFactor = 0.95

	// CoherenceThreshold is the tension below which the loop stops.
	CoherenceThreshold = 0.1

	// DefaultMaxIterations caps the number of decay steps in a single run.
	// From any starting tension in [0,1) coherence is reached in at most 45 steps,
	// so the cap only guards against misconfigured decay factors.
	DefaultMaxIterations = 1000
)

// Log and label constants
const (
	// OperatorPrefix starts every synthesized operator name.
	OperatorPrefix = "Operator_"

	// TensionReducedEntry is appended to the log after every decay step.
	TensionReducedEntry = "Tension reduced."

	// DefaultTail is how many log entries the CLI prints after a run.
	DefaultTail = 5
)

// GenesisAxiom is the founding statement of the solver.
const GenesisAxiom = "R = X asking what N is Not"

// StateDirName is the directory holding the run database and traces.
const StateDirName = ".fieldspace"

// Sweep and listing limits
const (
	// MaxSweepSeeds bounds the number of runs a single sweep may execute.
	MaxSweepSeeds = 100

	// DefaultListLimit is how many runs are listed when no limit is given.
	DefaultListLimit = 20
)
