package mcp

import (
	"github.com/nvandessel/fieldspace/internal/convergence"
	"github.com/nvandessel/fieldspace/internal/simulation"
)

// FieldspaceRunInput defines the input for fieldspace_run tool.
type FieldspaceRunInput struct {
	Variables     int      `json:"variables,omitempty" jsonschema:"Number of variables (sizes a buffer only; default 0)"`
	Clauses       int      `json:"clauses,omitempty" jsonschema:"Number of clauses (sizes a buffer only; default 0)"`
	Tension       *float64 `json:"tension,omitempty" jsonschema:"Initial tension in [0,1). Drawn from seed when omitted"`
	Seed          *int64   `json:"seed,omitempty" jsonschema:"Seed for the initial tension draw. Ignored when tension is set"`
	MaxIterations int      `json:"max_iterations,omitempty" jsonschema:"Iteration cap for this run (default from configuration)"`
}

// FieldspaceRunOutput defines the output for fieldspace_run tool.
type FieldspaceRunOutput struct {
	RunID          string             `json:"run_id" jsonschema:"ID of the stored run"`
	InitialTension float64            `json:"initial_tension" jsonschema:"Tension the loop started from"`
	Seed           *int64             `json:"seed,omitempty" jsonschema:"Seed used for the tension draw, if any"`
	Iterations     int                `json:"iterations" jsonschema:"Number of steps taken"`
	Converged      bool               `json:"converged" jsonschema:"Whether tension fell below the coherence threshold"`
	Report         convergence.Report `json:"report" jsonschema:"Final report"`
	RecentLog      []string           `json:"recent_log,omitempty" jsonschema:"Most recent log entries"`
	Message        string             `json:"message" jsonschema:"Human-readable result message"`
}

// FieldspaceSweepInput defines the input for fieldspace_sweep tool.
type FieldspaceSweepInput struct {
	Seeds         []int64 `json:"seeds" jsonschema:"Seeds to run, one run per seed"`
	Variables     int     `json:"variables,omitempty" jsonschema:"Number of variables for every run"`
	Clauses       int     `json:"clauses,omitempty" jsonschema:"Number of clauses for every run"`
	MaxIterations int     `json:"max_iterations,omitempty" jsonschema:"Iteration cap for every run"`
	Save          bool    `json:"save,omitempty" jsonschema:"Persist every run of the sweep (default: false)"`
}

// FieldspaceSweepOutput defines the output for fieldspace_sweep tool.
type FieldspaceSweepOutput struct {
	Summary simulation.SweepSummary `json:"summary" jsonschema:"Aggregate statistics over the sweep"`
	Runs    []RunListItem           `json:"runs" jsonschema:"One entry per seed, in input order"`
	Message string                  `json:"message" jsonschema:"Human-readable summary"`
}

// FieldspaceRunsInput defines the input for fieldspace_runs tool.
type FieldspaceRunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of runs to return, newest first (default: 20)"`
}

// FieldspaceRunsOutput defines the output for fieldspace_runs tool.
type FieldspaceRunsOutput struct {
	Runs  []RunListItem `json:"runs" jsonschema:"Stored runs, newest first"`
	Count int           `json:"count" jsonschema:"Number of runs returned"`
}

// RunListItem provides a list view of a run.
type RunListItem struct {
	ID             string  `json:"id"`
	CreatedAt      string  `json:"created_at,omitempty"`
	InitialTension float64 `json:"initial_tension"`
	Seed           *int64  `json:"seed,omitempty"`
	Iterations     int     `json:"iterations"`
	Converged      bool    `json:"converged"`
	FinalTension   float64 `json:"final_tension"`
	OperatorCount  int     `json:"operator_count"`
	HistoryLength  int     `json:"history_length"`
}

// FieldspaceShowInput defines the input for fieldspace_show tool.
type FieldspaceShowInput struct {
	ID string `json:"id" jsonschema:"ID of the run to show"`
}

// FieldspaceShowOutput defines the output for fieldspace_show tool.
type FieldspaceShowOutput struct {
	Run       RunListItem `json:"run" jsonschema:"The stored run"`
	Variables int         `json:"variables" jsonschema:"Variables the run was started with"`
	Clauses   int         `json:"clauses" jsonschema:"Clauses the run was started with"`
	RecentLog []string    `json:"recent_log,omitempty" jsonschema:"Last log entries kept with the run"`
}

// FieldspaceTableInput defines the input for fieldspace_table tool.
type FieldspaceTableInput struct{}

// FieldspaceTableOutput defines the output for fieldspace_table tool.
type FieldspaceTableOutput struct {
	Entries       []convergence.TableEntry `json:"entries" jsonschema:"Digit table positions with their labels"`
	DecayFactor   float64                  `json:"decay_factor" jsonschema:"Factor applied to tension on every step"`
	Threshold     float64                  `json:"threshold" jsonschema:"Coherence threshold"`
	MaxIterations int                      `json:"max_iterations" jsonschema:"Configured iteration cap"`
}

// FieldspaceBackupInput defines the input for fieldspace_backup tool.
type FieldspaceBackupInput struct {
	NoCompress bool `json:"no_compress,omitempty" jsonschema:"Write a plain JSON backup instead of the compressed format"`
}

// FieldspaceBackupOutput defines the output for fieldspace_backup tool.
type FieldspaceBackupOutput struct {
	File     string `json:"file" jsonschema:"Backup file name inside the backup directory"`
	RunCount int    `json:"run_count" jsonschema:"Number of runs exported"`
	Version  int    `json:"version" jsonschema:"Backup format version"`
	Pruned   int    `json:"pruned" jsonschema:"Old backups removed by retention"`
	Message  string `json:"message" jsonschema:"Human-readable summary"`
}

// FieldspaceRestoreInput defines the input for fieldspace_restore tool.
type FieldspaceRestoreInput struct {
	File string `json:"file" jsonschema:"Backup file name inside the backup directory, as returned by fieldspace_backup"`
	Mode string `json:"mode,omitempty" jsonschema:"merge (default) skips existing runs; replace deletes every run first"`
}

// FieldspaceRestoreOutput defines the output for fieldspace_restore tool.
type FieldspaceRestoreOutput struct {
	RunsRestored int    `json:"runs_restored" jsonschema:"Runs written to the store"`
	RunsSkipped  int    `json:"runs_skipped" jsonschema:"Runs skipped because their ID already existed"`
	RunsDeleted  int    `json:"runs_deleted" jsonschema:"Runs deleted before restoring (replace mode)"`
	Message      string `json:"message" jsonschema:"Human-readable summary"`
}
