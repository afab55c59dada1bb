// Package backup exports and restores recorded convergence runs.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/fieldspace/internal/store"
)

// DirName is the backup directory under a state directory.
const DirName = "backups"

// BackupFormat is the payload of a backup file.
type BackupFormat struct {
	Version   int         `json:"version"`
	CreatedAt time.Time   `json:"created_at"`
	Runs      []store.Run `json:"runs"`
}

// Dir returns the backup directory for a state directory.
func Dir(stateDir string) string {
	return filepath.Join(stateDir, DirName)
}

// Backup exports every run in the store to outputPath.
// Compressed backups use the V2 format; otherwise a plain V1 JSON document is written.
func Backup(ctx context.Context, runStore store.RunStore, outputPath string, compress bool) (*BackupFormat, error) {
	runs, err := runStore.ListRuns(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if runs == nil {
		runs = []store.Run{}
	}

	b := &BackupFormat{
		Version:   FormatV1,
		CreatedAt: time.Now().UTC(),
		Runs:      runs,
	}

	if compress {
		b.Version = FormatV2
		if err := WriteV2(outputPath, b); err != nil {
			return nil, err
		}
		return b, nil
	}

	if err := writeV1(outputPath, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeV1(path string, b *BackupFormat) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(b); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	return nil
}

// Read loads a backup file of either format.
func Read(path string) (*BackupFormat, error) {
	version, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if version == FormatV2 {
		return ReadV2(path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat backup file: %w", err)
	}
	if info.Size() > MaxDecompressedSize {
		return nil, fmt.Errorf("backup file exceeds maximum size of %d bytes", MaxDecompressedSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup file: %w", err)
	}
	defer f.Close()

	var b BackupFormat
	if err := json.NewDecoder(f).Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to decode backup: %w", err)
	}
	if b.Version != FormatV1 {
		return nil, fmt.Errorf("unsupported backup version: %d", b.Version)
	}
	return &b, nil
}

// RestoreMode controls how restore handles existing runs.
type RestoreMode string

const (
	// RestoreMerge skips runs whose ID already exists (default).
	RestoreMerge RestoreMode = "merge"
	// RestoreReplace deletes every stored run before restoring.
	RestoreReplace RestoreMode = "replace"
)

// ParseRestoreMode validates a mode name. Empty means merge.
func ParseRestoreMode(s string) (RestoreMode, error) {
	switch RestoreMode(s) {
	case "", RestoreMerge:
		return RestoreMerge, nil
	case RestoreReplace:
		return RestoreReplace, nil
	default:
		return "", fmt.Errorf("invalid restore mode: %q (valid: merge, replace)", s)
	}
}

// RestoreResult contains statistics about the restore operation.
type RestoreResult struct {
	RunsRestored int `json:"runs_restored"`
	RunsSkipped  int `json:"runs_skipped"`
	RunsDeleted  int `json:"runs_deleted"`
}

// Restore imports runs from a backup file into the store.
// Run IDs and timestamps are preserved.
func Restore(ctx context.Context, runStore store.RunStore, inputPath string, mode RestoreMode) (*RestoreResult, error) {
	b, err := Read(inputPath)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{}

	if mode == RestoreReplace {
		existing, err := runStore.ListRuns(ctx, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		for _, run := range existing {
			if err := runStore.DeleteRun(ctx, run.ID); err != nil {
				return nil, fmt.Errorf("failed to delete run %s: %w", run.ID, err)
			}
			result.RunsDeleted++
		}
	}

	for _, run := range b.Runs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if mode == RestoreMerge {
			_, err := runStore.GetRun(ctx, run.ID)
			if err == nil {
				result.RunsSkipped++
				continue
			}
			if !errors.Is(err, store.ErrRunNotFound) {
				return nil, fmt.Errorf("failed to check existing run %s: %w", run.ID, err)
			}
		}

		if _, err := runStore.SaveRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to restore run %s: %w", run.ID, err)
		}
		result.RunsRestored++
	}

	return result, nil
}

// GenerateBackupPath creates a timestamped V2 backup filename in dir.
func GenerateBackupPath(dir string) string {
	return filepath.Join(dir, fmt.Sprintf("%s%s.json.gz", filePrefix, timestamp()))
}

// GenerateBackupPathV1 creates a timestamped V1 backup filename in dir.
func GenerateBackupPathV1(dir string) string {
	return filepath.Join(dir, fmt.Sprintf("%s%s.json", filePrefix, timestamp()))
}

func timestamp() string {
	return time.Now().UTC().Format("20060102-150405.000")
}
