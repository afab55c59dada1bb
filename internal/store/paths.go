package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/fieldspace/internal/constants"
)

// GlobalStatePath returns the path to the global .fieldspace directory.
// On Unix: ~/.fieldspace
// On Windows: %USERPROFILE%\.fieldspace
func GlobalStatePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.StateDirName), nil
}

// LocalStatePath returns the path to the local .fieldspace directory
// for the given project root.
func LocalStatePath(projectRoot string) string {
	return filepath.Join(projectRoot, constants.StateDirName)
}

// StatePath resolves the state directory for a scope.
func StatePath(projectRoot string, scope constants.Scope) (string, error) {
	switch scope {
	case constants.ScopeLocal:
		return LocalStatePath(projectRoot), nil
	case constants.ScopeGlobal:
		return GlobalStatePath()
	default:
		return "", fmt.Errorf("invalid scope: %q (valid: local, global)", scope)
	}
}

// OpenRunStore opens the SQLite run store for a scope, creating it if needed.
func OpenRunStore(projectRoot string, scope constants.Scope) (*SQLiteRunStore, error) {
	dir, err := StatePath(projectRoot, scope)
	if err != nil {
		return nil, err
	}
	return NewSQLiteRunStore(dir)
}
