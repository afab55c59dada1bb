package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewSQLiteRunStore(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), ".fieldspace")

	s, err := NewSQLiteRunStore(stateDir)
	if err != nil {
		t.Fatalf("NewSQLiteRunStore() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(stateDir, DatabaseFile)); os.IsNotExist(err) {
		t.Errorf("%s was not created", DatabaseFile)
	}
	if s.StateDir() != stateDir {
		t.Errorf("StateDir() = %q, want %q", s.StateDir(), stateDir)
	}
}

func TestSQLiteRunStore_PersistsAcrossReopen(t *testing.T) {
	stateDir := t.TempDir()
	ctx := context.Background()

	s, err := NewSQLiteRunStore(stateDir)
	if err != nil {
		t.Fatalf("NewSQLiteRunStore() error = %v", err)
	}
	id, err := s.SaveRun(ctx, sampleRun("", time.Now()))
	if err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewSQLiteRunStore(stateDir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun() after reopen error = %v", err)
	}
	if got.Report.OperatorCount != 20 || got.Seed == nil || *got.Seed != 42 {
		t.Errorf("GetRun() after reopen = %+v", got)
	}
}

func TestSQLiteRunStore_CloseTwice(t *testing.T) {
	s, err := NewSQLiteRunStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteRunStore() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestNewSQLiteRunStore_BadDir(t *testing.T) {
	// A regular file where the state directory should be.
	file := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(file, []byte("x"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewSQLiteRunStore(filepath.Join(file, "state")); err == nil {
		t.Error("expected error when the state directory cannot be created")
	}
}
