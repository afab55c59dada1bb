package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// DatabaseFile is the name of the run database inside the state directory.
const DatabaseFile = "fieldspace.db"

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRunStore implements RunStore using SQLite for persistence.
type SQLiteRunStore struct {
	mu       sync.RWMutex
	db       *sql.DB
	stateDir string
	dbPath   string
}

// NewSQLiteRunStore creates a store with its database at stateDir/fieldspace.db.
func NewSQLiteRunStore(stateDir string) (*SQLiteRunStore, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	dbPath := filepath.Join(stateDir, DatabaseFile)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRunStore{
		db:       db,
		stateDir: stateDir,
		dbPath:   dbPath,
	}, nil
}

// StateDir returns the directory holding the database.
func (s *SQLiteRunStore) StateDir() string {
	return s.stateDir
}

// SaveRun persists a run.
func (s *SQLiteRunStore) SaveRun(ctx context.Context, run Run) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepare(&run)

	var recentLog sql.NullString
	if len(run.RecentLog) > 0 {
		data, err := json.Marshal(run.RecentLog)
		if err != nil {
			return "", fmt.Errorf("failed to encode recent log: %w", err)
		}
		recentLog = sql.NullString{String: string(data), Valid: true}
	}

	var seed sql.NullInt64
	if run.Seed != nil {
		seed = sql.NullInt64{Int64: *run.Seed, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, created_at, variables, clauses, initial_tension, seed,
			iterations, converged, final_tension, operator_count, history_length, recent_log
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.CreatedAt.UTC().Format(timeLayout),
		run.Variables,
		run.Clauses,
		run.InitialTension,
		seed,
		run.Iterations,
		boolToInt(run.Converged),
		run.Report.FinalTension,
		run.Report.OperatorCount,
		run.Report.HistoryLength,
		recentLog,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	return run.ID, nil
}

const selectRunColumns = `
	SELECT id, created_at, variables, clauses, initial_tension, seed,
		iterations, converged, final_tension, operator_count, history_length, recent_log
	FROM runs`

// GetRun retrieves a run by ID.
func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectRunColumns+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteRunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectRunColumns + ` ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}

// DeleteRun removes a run.
func (s *SQLiteRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run       Run
		createdAt string
		seed      sql.NullInt64
		converged int
		recentLog sql.NullString
	)

	err := row.Scan(
		&run.ID,
		&createdAt,
		&run.Variables,
		&run.Clauses,
		&run.InitialTension,
		&seed,
		&run.Iterations,
		&converged,
		&run.Report.FinalTension,
		&run.Report.OperatorCount,
		&run.Report.HistoryLength,
		&recentLog,
	)
	if err != nil {
		return nil, err
	}

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	run.CreatedAt = t

	if seed.Valid {
		v := seed.Int64
		run.Seed = &v
	}
	run.Converged = converged != 0

	if recentLog.Valid && recentLog.String != "" {
		if err := json.Unmarshal([]byte(recentLog.String), &run.RecentLog); err != nil {
			return nil, fmt.Errorf("invalid recent_log: %w", err)
		}
	}

	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ RunStore = (*SQLiteRunStore)(nil)
