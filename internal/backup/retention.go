package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

const filePrefix = "fieldspace-backup-"

// DefaultKeep is the number of backups kept when no retention is configured.
const DefaultKeep = 10

// BackupInfo describes a backup file on disk.
type BackupInfo struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
	Version   int       `json:"version"`
}

// Retention decides which backups survive pruning. A backup survives if it
// is one of the Keep newest or is younger than MaxAge. Zero fields are ignored;
// the zero Retention keeps DefaultKeep.
type Retention struct {
	Keep   int
	MaxAge time.Duration
}

// NewRetention builds a Retention from a count and an age string such as "30d".
func NewRetention(keep int, maxAge string) (Retention, error) {
	r := Retention{Keep: keep}
	if maxAge != "" {
		d, err := ParseAge(maxAge)
		if err != nil {
			return Retention{}, err
		}
		r.MaxAge = d
	}
	return r, nil
}

// Split partitions backups, ordered newest first, into kept and pruned.
func (r Retention) Split(backups []BackupInfo, now time.Time) (kept, pruned []BackupInfo) {
	keep := r.Keep
	if keep <= 0 && r.MaxAge <= 0 {
		keep = DefaultKeep
	}
	cutoff := now.Add(-r.MaxAge)

	for i, b := range backups {
		if i < keep || (r.MaxAge > 0 && b.CreatedAt.After(cutoff)) {
			kept = append(kept, b)
		} else {
			pruned = append(pruned, b)
		}
	}
	return kept, pruned
}

func isBackupFile(name string) bool {
	if !strings.HasPrefix(name, filePrefix) {
		return false
	}
	return strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".json.gz")
}

// ListBackups returns the backup files in dir, newest first.
// A missing directory holds no backups.
func ListBackups(dir string) ([]BackupInfo, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []BackupInfo
	for _, e := range entries {
		if e.IsDir() || !isBackupFile(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, e.Name())
		version, _ := DetectFormat(path)
		backups = append(backups, BackupInfo{
			Path:      path,
			Size:      fi.Size(),
			CreatedAt: fi.ModTime(),
			Version:   version,
		})
	}

	// Names embed a sortable timestamp
	slices.SortFunc(backups, func(a, b BackupInfo) int {
		return strings.Compare(filepath.Base(b.Path), filepath.Base(a.Path))
	})
	return backups, nil
}

// Prune removes the backups in dir that r does not keep and returns their paths.
func Prune(dir string, r Retention) ([]string, error) {
	backups, err := ListBackups(dir)
	if err != nil {
		return nil, err
	}

	_, pruned := r.Split(backups, time.Now())
	removed := make([]string, 0, len(pruned))
	for _, b := range pruned {
		if err := os.Remove(b.Path); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", filepath.Base(b.Path), err)
		}
		removed = append(removed, b.Path)
	}
	return removed, nil
}

// ParseAge parses an age such as "36h", "30d" or "2w".
func ParseAge(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	units := map[string]time.Duration{
		"d": 24 * time.Hour,
		"w": 7 * 24 * time.Hour,
	}
	for suffix, unit := range units {
		n, ok := strings.CutSuffix(s, suffix)
		if !ok {
			continue
		}
		count, err := strconv.Atoi(n)
		if err != nil || count < 0 {
			break
		}
		return time.Duration(count) * unit, nil
	}
	return 0, fmt.Errorf("invalid age %q (examples: 36h, 30d, 2w)", s)
}
