package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/nvandessel/fieldspace/internal/backup"
	"github.com/nvandessel/fieldspace/internal/store"
	"github.com/spf13/cobra"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export recorded runs to a backup file",
		Long: `Backup every recorded run to a compressed file.

Default location: .fieldspace/backups/fieldspace-backup-YYYYMMDD-HHMMSS.mmm.json.gz
After each backup, older files in the same directory are pruned
(default: keep the last 10).

Examples:
  fieldspace backup                             # V2 compressed, default location
  fieldspace backup --output runs.json.gz       # Specific file
  fieldspace backup --no-compress               # V1 plain JSON
  fieldspace backup --keep 3 --max-age 30d      # Custom retention
  fieldspace backup list                        # List backups
  fieldspace backup verify <file>               # Verify integrity`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			outputPath, _ := cmd.Flags().GetString("output")
			noCompress, _ := cmd.Flags().GetBool("no-compress")
			keep, _ := cmd.Flags().GetInt("keep")
			maxAge, _ := cmd.Flags().GetString("max-age")

			retention, err := backup.NewRetention(keep, maxAge)
			if err != nil {
				return fmt.Errorf("invalid retention: %w", err)
			}

			runStore, err := openRunStore(cmd)
			if err != nil {
				return err
			}
			defer runStore.Close()

			compress := !noCompress
			if outputPath == "" {
				dir := backup.Dir(runStore.StateDir())
				if compress {
					outputPath = backup.GenerateBackupPath(dir)
				} else {
					outputPath = backup.GenerateBackupPathV1(dir)
				}
			}

			result, err := backup.Backup(context.Background(), runStore, outputPath, compress)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			deleted, err := backup.Prune(filepath.Dir(outputPath), retention)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to apply retention: %v\n", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"path":       outputPath,
					"run_count":  len(result.Runs),
					"version":    result.Version,
					"compressed": compress,
					"pruned":     len(deleted),
				})
			}

			w := cmd.OutOrStdout()
			versionLabel := "v2/gzip"
			if !compress {
				versionLabel = "v1/json"
			}
			fmt.Fprintf(w, "Backup created: %d run(s) (%s)\n", len(result.Runs), versionLabel)
			fmt.Fprintf(w, "  Path: %s\n", outputPath)
			if len(deleted) > 0 {
				fmt.Fprintf(w, "  Pruned %d old backup(s)\n", len(deleted))
			}
			return nil
		},
	}

	cmd.Flags().String("output", "", "Output file path (default: auto-generated in .fieldspace/backups/)")
	cmd.Flags().Bool("no-compress", false, "Write a V1 plain JSON backup instead of V2 compressed")
	cmd.Flags().Int("keep", backup.DefaultKeep, "Number of most recent backups to keep")
	cmd.Flags().String("max-age", "", "Also keep backups younger than this (e.g. 30d, 2w, 720h)")
	addScopeFlag(cmd)

	cmd.AddCommand(
		newBackupListCmd(),
		newBackupVerifyCmd(),
	)

	return cmd
}

// backupDirFromFlags resolves the backup directory for --root and --scope
// without opening the run store.
func backupDirFromFlags(cmd *cobra.Command) (string, error) {
	root, _ := cmd.Flags().GetString("root")
	scope, err := scopeFromFlags(cmd)
	if err != nil {
		return "", err
	}
	stateDir, err := store.StatePath(root, scope)
	if err != nil {
		return "", err
	}
	return backup.Dir(stateDir), nil
}

func newBackupListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backups with metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			dir, err := backupDirFromFlags(cmd)
			if err != nil {
				return err
			}
			backups, err := backup.ListBackups(dir)
			if err != nil {
				return fmt.Errorf("failed to list backups: %w", err)
			}

			if jsonOut {
				type jsonEntry struct {
					backup.BackupInfo
					RunCount int    `json:"run_count,omitempty"`
					Checksum string `json:"checksum,omitempty"`
				}
				entries := make([]jsonEntry, 0, len(backups))
				for _, b := range backups {
					entry := jsonEntry{BackupInfo: b}
					if b.Version == backup.FormatV2 {
						if header, err := backup.ReadV2Header(b.Path); err == nil {
							entry.RunCount = header.RunCount
							entry.Checksum = header.Checksum
						}
					}
					entries = append(entries, entry)
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"backups":     entries,
					"total_count": len(entries),
					"directory":   dir,
				})
			}

			w := cmd.OutOrStdout()
			if len(backups) == 0 {
				fmt.Fprintf(w, "No backups found in %s\n", dir)
				return nil
			}

			fmt.Fprintf(w, "Backups in %s:\n", dir)
			var totalSize int64
			for _, b := range backups {
				totalSize += b.Size
				label := "v1  json"
				runs := "-"
				if b.Version == backup.FormatV2 {
					label = "v2  gzip"
					if header, err := backup.ReadV2Header(b.Path); err == nil {
						runs = fmt.Sprintf("%d", header.RunCount)
					}
				}
				fmt.Fprintf(w, "  %s  %s  %8s  %s runs  %s\n",
					b.CreatedAt.Format("2006-01-02 15:04"), label, formatBytes(b.Size), runs, filepath.Base(b.Path))
			}
			fmt.Fprintf(w, "Total: %d backups, %s\n", len(backups), formatBytes(totalSize))
			return nil
		},
	}
	addScopeFlag(cmd)
	return cmd
}

func newBackupVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify the checksum of a V2 backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			path := args[0]

			verr := backup.VerifyChecksum(path)
			if jsonOut {
				out := map[string]interface{}{"path": path, "valid": verr == nil}
				if verr != nil {
					out["error"] = verr.Error()
				}
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(out); err != nil {
					return err
				}
			} else if verr == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "OK: %s\n", path)
			}

			if verr != nil {
				return fmt.Errorf("verification failed: %w", verr)
			}
			return nil
		},
	}
}

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore recorded runs from a backup file",
		Long: `Restore runs from a backup file. V1 and V2 formats are auto-detected.

Modes:
  merge   - Skip runs whose ID already exists (default)
  replace - Delete every recorded run first, then restore

Examples:
  fieldspace restore .fieldspace/backups/fieldspace-backup-20260301-120000.000.json.gz
  fieldspace restore runs.json --mode replace`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			modeFlag, _ := cmd.Flags().GetString("mode")

			mode, err := backup.ParseRestoreMode(modeFlag)
			if err != nil {
				return err
			}

			runStore, err := openRunStore(cmd)
			if err != nil {
				return err
			}
			defer runStore.Close()

			result, err := backup.Restore(context.Background(), runStore, args[0], mode)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"mode":          mode,
					"runs_restored": result.RunsRestored,
					"runs_skipped":  result.RunsSkipped,
					"runs_deleted":  result.RunsDeleted,
				})
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Restore complete (mode: %s)\n", mode)
			fmt.Fprintf(w, "  Runs: %d restored, %d skipped\n", result.RunsRestored, result.RunsSkipped)
			if mode == backup.RestoreReplace {
				fmt.Fprintf(w, "  Deleted %d existing run(s) first\n", result.RunsDeleted)
			}
			return nil
		},
	}

	cmd.Flags().String("mode", string(backup.RestoreMerge), "Restore mode: merge or replace")
	addScopeFlag(cmd)

	return cmd
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b int64) string {
	const (
		kb = 1024
		mb = kb * 1024
	)
	switch {
	case b >= mb:
		return fmt.Sprintf("%.1fMB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.1fKB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%dB", b)
	}
}
