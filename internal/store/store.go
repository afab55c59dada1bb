// Package store defines the RunStore interface for persisting convergence runs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/fieldspace/internal/convergence"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// Run is a persisted record of one convergence run.
type Run struct {
	ID             string             `json:"id"`
	CreatedAt      time.Time          `json:"created_at"`
	Variables      int                `json:"variables"`
	Clauses        int                `json:"clauses"`
	InitialTension float64            `json:"initial_tension"`
	Seed           *int64             `json:"seed,omitempty"` // nil when the tension was supplied directly
	Iterations     int                `json:"iterations"`
	Converged      bool               `json:"converged"`
	Report         convergence.Report `json:"report"`
	RecentLog      []string           `json:"recent_log,omitempty"`
}

// RunInput describes how a run was started.
type RunInput struct {
	Variables      int
	Clauses        int
	InitialTension float64
	Seed           *int64
}

// NewRun builds a record from a finished run, keeping the last tail log entries.
// The ID and timestamp are left for SaveRun to fill in.
func NewRun(in RunInput, res convergence.Result, tail int) Run {
	run := Run{
		Variables:      in.Variables,
		Clauses:        in.Clauses,
		InitialTension: in.InitialTension,
		Seed:           in.Seed,
		Iterations:     res.Iterations,
		Converged:      res.Converged,
		Report:         res.Report,
	}
	if res.State != nil && tail > 0 {
		run.RecentLog = res.State.Log.Last(tail)
	}
	return run
}

// RunStore defines the interface for storing and querying runs.
type RunStore interface {
	// SaveRun persists a run. An empty ID is replaced with a generated one
	// and a zero CreatedAt with the current time. Returns the run's ID.
	SaveRun(ctx context.Context, run Run) (string, error)

	// GetRun retrieves a run by ID. Returns ErrRunNotFound if absent.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs newest first. limit <= 0 returns all of them.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// DeleteRun removes a run. Returns ErrRunNotFound if absent.
	DeleteRun(ctx context.Context, id string) error

	// Close releases resources.
	Close() error
}

// NewRunID generates a run identifier.
func NewRunID() string {
	return "run-" + uuid.New().String()
}

// prepare fills in the ID and timestamp of a run about to be saved.
func prepare(run *Run) {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
}
