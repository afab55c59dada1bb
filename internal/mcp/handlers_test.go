package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/fieldspace/internal/constants"
	"github.com/nvandessel/fieldspace/internal/ratelimit"
	"github.com/nvandessel/fieldspace/internal/store"
)

func ptr[T any](v T) *T { return &v }

func setupTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	server, err := NewServer(&Config{
		Name:    "test-server",
		Version: "v1.0.0",
		Root:    tmpDir,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { server.Close() })

	return server, tmpDir
}

func TestHandleFieldspaceRun(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	_, out, err := server.handleFieldspaceRun(ctx, &sdk.CallToolRequest{}, FieldspaceRunInput{
		Variables: 7,
		Clauses:   12,
		Tension:   ptr(0.5),
	})
	if err != nil {
		t.Fatalf("handleFieldspaceRun failed: %v", err)
	}

	if !out.Converged {
		t.Error("run from 0.5 should converge")
	}
	if out.Iterations != 32 {
		t.Errorf("Iterations = %d, want 32", out.Iterations)
	}
	if out.Report.OperatorCount != 20 || out.Report.HistoryLength != 52 {
		t.Errorf("Report = %+v, want 20 operators and 52 entries", out.Report)
	}
	if out.Report.FinalTension >= 0.1 {
		t.Errorf("FinalTension = %v, want < 0.1", out.Report.FinalTension)
	}
	if len(out.RecentLog) != constants.DefaultTail {
		t.Errorf("RecentLog has %d entries, want %d", len(out.RecentLog), constants.DefaultTail)
	}
	if !strings.Contains(out.Message, "Coherence reached") {
		t.Errorf("Message = %q", out.Message)
	}

	// The run is persisted.
	stored, err := server.store.GetRun(ctx, out.RunID)
	if err != nil {
		t.Fatalf("GetRun(%s): %v", out.RunID, err)
	}
	if stored.Report != out.Report {
		t.Errorf("stored report = %+v, want %+v", stored.Report, out.Report)
	}
}

func TestHandleFieldspaceRun_Seeded(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	_, a, err := server.handleFieldspaceRun(ctx, &sdk.CallToolRequest{}, FieldspaceRunInput{Seed: ptr(int64(11))})
	if err != nil {
		t.Fatalf("handleFieldspaceRun failed: %v", err)
	}
	_, b, err := server.handleFieldspaceRun(ctx, &sdk.CallToolRequest{}, FieldspaceRunInput{Seed: ptr(int64(11))})
	if err != nil {
		t.Fatalf("handleFieldspaceRun failed: %v", err)
	}

	if a.InitialTension != b.InitialTension || a.Report != b.Report {
		t.Errorf("same seed gave different runs: %+v vs %+v", a, b)
	}
	if a.Seed == nil || *a.Seed != 11 {
		t.Errorf("Seed = %v, want 11", a.Seed)
	}
}

func TestHandleFieldspaceRun_Errors(t *testing.T) {
	server, _ := setupTestServer(t)

	tests := []struct {
		name string
		args FieldspaceRunInput
		want string
	}{
		{"negative variables", FieldspaceRunInput{Variables: -1}, "non-negative"},
		{"tension out of range", FieldspaceRunInput{Tension: ptr(1.5)}, "[0,1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := server.handleFieldspaceRun(context.Background(), &sdk.CallToolRequest{}, tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestHandleFieldspaceRun_MaxIterations(t *testing.T) {
	server, _ := setupTestServer(t)

	_, out, err := server.handleFieldspaceRun(context.Background(), &sdk.CallToolRequest{}, FieldspaceRunInput{
		Tension:       ptr(0.9),
		MaxIterations: 3,
	})
	if err != nil {
		t.Fatalf("handleFieldspaceRun failed: %v", err)
	}
	if out.Converged || out.Iterations != 3 {
		t.Errorf("got converged=%t iterations=%d, want false/3", out.Converged, out.Iterations)
	}
	if !strings.Contains(out.Message, "Iteration cap reached") {
		t.Errorf("Message = %q", out.Message)
	}
}

func TestHandleFieldspaceRun_RateLimited(t *testing.T) {
	server, _ := setupTestServer(t)
	server.toolLimiters = ratelimit.NewToolLimiters(map[string]ratelimit.Limit{
		"fieldspace_run": {PerMinute: 1, Burst: 1},
	})

	ctx := context.Background()
	if _, _, err := server.handleFieldspaceRun(ctx, &sdk.CallToolRequest{}, FieldspaceRunInput{Tension: ptr(0.2)}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, _, err := server.handleFieldspaceRun(ctx, &sdk.CallToolRequest{}, FieldspaceRunInput{Tension: ptr(0.2)})
	if err == nil || !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Errorf("second call error = %v, want rate limit", err)
	}
}

func TestHandleFieldspaceSweep(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	_, out, err := server.handleFieldspaceSweep(ctx, &sdk.CallToolRequest{}, FieldspaceSweepInput{
		Seeds: []int64{1, 2, 3},
		Save:  true,
	})
	if err != nil {
		t.Fatalf("handleFieldspaceSweep failed: %v", err)
	}
	if out.Summary.Runs != 3 || len(out.Runs) != 3 {
		t.Errorf("got %d runs in summary and %d listed, want 3", out.Summary.Runs, len(out.Runs))
	}
	for i, run := range out.Runs {
		if run.Seed == nil || *run.Seed != int64(i+1) {
			t.Errorf("run %d seed = %v, want %d", i, run.Seed, i+1)
		}
	}

	runs, err := server.store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("store has %d runs, want 3", len(runs))
	}
}

func TestHandleFieldspaceSweep_Errors(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	if _, _, err := server.handleFieldspaceSweep(ctx, &sdk.CallToolRequest{}, FieldspaceSweepInput{}); err == nil {
		t.Error("expected error for empty seed list")
	}

	seeds := make([]int64, constants.MaxSweepSeeds+1)
	_, _, err := server.handleFieldspaceSweep(ctx, &sdk.CallToolRequest{}, FieldspaceSweepInput{Seeds: seeds})
	if err == nil || !strings.Contains(err.Error(), "too many seeds") {
		t.Errorf("error = %v, want too many seeds", err)
	}
}

// failingSaveStore accepts the first limit saves and rejects the rest.
type failingSaveStore struct {
	store.RunStore
	limit int
	saves int
}

func (f *failingSaveStore) SaveRun(ctx context.Context, run store.Run) (string, error) {
	if f.saves >= f.limit {
		return "", errors.New("disk full")
	}
	f.saves++
	return f.RunStore.SaveRun(ctx, run)
}

func TestHandleFieldspaceSweep_PartialFailureAudited(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	server, err := NewServer(&Config{
		Name:  "test-server",
		Root:  tmpDir,
		Store: &failingSaveStore{RunStore: store.NewInMemoryRunStore(), limit: 2},
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	ctx := context.Background()

	_, _, err = server.handleFieldspaceSweep(ctx, &sdk.CallToolRequest{}, FieldspaceSweepInput{
		Seeds: []int64{1, 2, 3, 4},
		Save:  true,
	})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("error = %v, want the save failure", err)
	}
	server.auditLogger.Close()

	saved, err := server.store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("store has %d runs, want 2", len(saved))
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, constants.StateDirName, AuditFile))
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	var entry AuditEntry
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("parse audit entry %q: %v", data, err)
	}
	if entry.Status != "error" {
		t.Errorf("status = %q, want error", entry.Status)
	}
	want := []string{saved[1].ID, saved[0].ID}
	if diff := cmp.Diff(want, entry.RunIDs); diff != "" {
		t.Errorf("audited run IDs mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleFieldspaceRuns(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	_, empty, err := server.handleFieldspaceRuns(ctx, &sdk.CallToolRequest{}, FieldspaceRunsInput{})
	if err != nil {
		t.Fatalf("handleFieldspaceRuns failed: %v", err)
	}
	if empty.Count != 0 || empty.Runs == nil {
		t.Errorf("empty store: Count=%d Runs=%v, want 0 and non-nil", empty.Count, empty.Runs)
	}

	var ids []string
	for _, tension := range []float64{0.2, 0.4, 0.6} {
		_, out, err := server.handleFieldspaceRun(ctx, &sdk.CallToolRequest{}, FieldspaceRunInput{Tension: ptr(tension)})
		if err != nil {
			t.Fatalf("handleFieldspaceRun failed: %v", err)
		}
		ids = append(ids, out.RunID)
	}

	_, out, err := server.handleFieldspaceRuns(ctx, &sdk.CallToolRequest{}, FieldspaceRunsInput{Limit: 2})
	if err != nil {
		t.Fatalf("handleFieldspaceRuns failed: %v", err)
	}
	if out.Count != 2 {
		t.Fatalf("Count = %d, want 2", out.Count)
	}
	if out.Runs[0].ID != ids[2] || out.Runs[1].ID != ids[1] {
		t.Errorf("runs not newest first: got %s, %s", out.Runs[0].ID, out.Runs[1].ID)
	}
	if out.Runs[0].CreatedAt == "" {
		t.Error("CreatedAt should be set")
	}
}

func TestHandleFieldspaceShow(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	_, run, err := server.handleFieldspaceRun(ctx, &sdk.CallToolRequest{}, FieldspaceRunInput{Variables: 3, Clauses: 4, Tension: ptr(0.15)})
	if err != nil {
		t.Fatalf("handleFieldspaceRun failed: %v", err)
	}

	_, out, err := server.handleFieldspaceShow(ctx, &sdk.CallToolRequest{}, FieldspaceShowInput{ID: run.RunID})
	if err != nil {
		t.Fatalf("handleFieldspaceShow failed: %v", err)
	}
	if out.Run.ID != run.RunID || out.Variables != 3 || out.Clauses != 4 {
		t.Errorf("show output = %+v", out)
	}
	if out.Run.Iterations != 8 || out.Run.OperatorCount != 4 || out.Run.HistoryLength != 12 {
		t.Errorf("show run = %+v, want 8 iterations, 4 operators, 12 entries", out.Run)
	}

	if _, _, err := server.handleFieldspaceShow(ctx, &sdk.CallToolRequest{}, FieldspaceShowInput{}); err == nil {
		t.Error("expected error for empty ID")
	}
	_, _, err = server.handleFieldspaceShow(ctx, &sdk.CallToolRequest{}, FieldspaceShowInput{ID: "run-missing"})
	if err == nil || !strings.Contains(err.Error(), "run not found") {
		t.Errorf("error = %v, want run not found", err)
	}
}

func TestHandleFieldspaceTable(t *testing.T) {
	server, _ := setupTestServer(t)

	_, out, err := server.handleFieldspaceTable(context.Background(), &sdk.CallToolRequest{}, FieldspaceTableInput{})
	if err != nil {
		t.Fatalf("handleFieldspaceTable failed: %v", err)
	}
	if len(out.Entries) != 16 {
		t.Fatalf("Entries = %d, want 16", len(out.Entries))
	}
	labeled := 0
	for _, e := range out.Entries {
		if e.Label != "" {
			labeled++
		}
	}
	if labeled != 10 {
		t.Errorf("labeled entries = %d, want 10", labeled)
	}
	if out.DecayFactor != 0.95 || out.Threshold != 0.1 || out.MaxIterations != 1000 {
		t.Errorf("parameters = %v/%v/%d", out.DecayFactor, out.Threshold, out.MaxIterations)
	}
}

func TestHandleTableResource(t *testing.T) {
	server, _ := setupTestServer(t)

	res, err := server.handleTableResource(context.Background(), &sdk.ReadResourceRequest{
		Params: &sdk.ReadResourceParams{URI: tableResourceURI},
	})
	if err != nil {
		t.Fatalf("handleTableResource failed: %v", err)
	}
	if len(res.Contents) != 1 {
		t.Fatalf("Contents = %d, want 1", len(res.Contents))
	}
	text := res.Contents[0].Text
	for _, want := range []string{"# Digit Table", "| 0 | 3 | triangle_center |", "| 4 | 5 | polyhedron |", "| 1 | 1 | - |"} {
		if !strings.Contains(text, want) {
			t.Errorf("table resource missing %q:\n%s", want, text)
		}
	}
}

func TestHandleRunResource(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	_, run, err := server.handleFieldspaceRun(ctx, &sdk.CallToolRequest{}, FieldspaceRunInput{Seed: ptr(int64(5))})
	if err != nil {
		t.Fatalf("handleFieldspaceRun failed: %v", err)
	}

	res, err := server.handleRunResource(ctx, &sdk.ReadResourceRequest{
		Params: &sdk.ReadResourceParams{URI: runResourcePrefix + run.RunID},
	})
	if err != nil {
		t.Fatalf("handleRunResource failed: %v", err)
	}
	text := res.Contents[0].Text
	for _, want := range []string{"# Run: " + run.RunID, "(seed 5)", "operator_count:", "history_length:"} {
		if !strings.Contains(text, want) {
			t.Errorf("run resource missing %q:\n%s", want, text)
		}
	}

	tests := []struct {
		name string
		uri  string
	}{
		{"wrong scheme", "other://runs/x"},
		{"missing id", runResourcePrefix},
		{"unknown id", runResourcePrefix + "run-missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := server.handleRunResource(ctx, &sdk.ReadResourceRequest{Params: &sdk.ReadResourceParams{URI: tt.uri}})
			if err == nil {
				t.Errorf("expected error for %q", tt.uri)
			}
		})
	}
}

func TestHandlers_WriteAuditLog(t *testing.T) {
	server, tmpDir := setupTestServer(t)
	ctx := context.Background()

	if _, _, err := server.handleFieldspaceRun(ctx, &sdk.CallToolRequest{}, FieldspaceRunInput{Tension: ptr(0.3)}); err != nil {
		t.Fatalf("handleFieldspaceRun failed: %v", err)
	}
	if _, _, err := server.handleFieldspaceShow(ctx, &sdk.CallToolRequest{}, FieldspaceShowInput{ID: "run-missing"}); err == nil {
		t.Fatal("expected show error")
	}
	server.auditLogger.Close()

	data, err := os.ReadFile(filepath.Join(tmpDir, constants.StateDirName, AuditFile))
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("audit log has %d lines, want 2:\n%s", len(lines), data)
	}
	if !strings.Contains(lines[0], `"tool":"fieldspace_run"`) || !strings.Contains(lines[0], `"status":"success"`) {
		t.Errorf("first entry = %s", lines[0])
	}
	if !strings.Contains(lines[0], `"run_ids":["run-`) {
		t.Errorf("first entry should carry the run ID: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"status":"error"`) {
		t.Errorf("second entry = %s", lines[1])
	}
}

func TestHandleFieldspaceBackupRestore(t *testing.T) {
	server, tmpDir := setupTestServer(t)
	ctx := context.Background()

	var ids []string
	for _, tension := range []float64{0.15, 0.5} {
		_, run, err := server.handleFieldspaceRun(ctx, &sdk.CallToolRequest{}, FieldspaceRunInput{Tension: ptr(tension)})
		if err != nil {
			t.Fatalf("handleFieldspaceRun failed: %v", err)
		}
		ids = append(ids, run.RunID)
	}

	_, out, err := server.handleFieldspaceBackup(ctx, &sdk.CallToolRequest{}, FieldspaceBackupInput{})
	if err != nil {
		t.Fatalf("handleFieldspaceBackup failed: %v", err)
	}
	if out.RunCount != 2 || out.Version != 2 {
		t.Errorf("backup output = %+v", out)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, constants.StateDirName, "backups", out.File)); err != nil {
		t.Fatalf("backup file missing: %v", err)
	}

	if err := server.store.DeleteRun(ctx, ids[0]); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}

	_, restored, err := server.handleFieldspaceRestore(ctx, &sdk.CallToolRequest{}, FieldspaceRestoreInput{File: out.File})
	if err != nil {
		t.Fatalf("handleFieldspaceRestore failed: %v", err)
	}
	if restored.RunsRestored != 1 || restored.RunsSkipped != 1 {
		t.Errorf("restore output = %+v, want 1 restored 1 skipped", restored)
	}
	if _, err := server.store.GetRun(ctx, ids[0]); err != nil {
		t.Errorf("deleted run should be restored: %v", err)
	}
}

func TestHandleFieldspaceRestore_Errors(t *testing.T) {
	server, _ := setupTestServer(t)
	server.toolLimiters = nil
	ctx := context.Background()

	tests := []struct {
		name string
		args FieldspaceRestoreInput
		msg  string
	}{
		{"empty file", FieldspaceRestoreInput{}, "file is required"},
		{"path traversal", FieldspaceRestoreInput{File: "../config.yaml"}, "inside the backup directory"},
		{"absolute path", FieldspaceRestoreInput{File: "/etc/passwd"}, "inside the backup directory"},
		{"bad mode", FieldspaceRestoreInput{File: "x.json", Mode: "wipe"}, "invalid restore mode"},
		{"missing file", FieldspaceRestoreInput{File: "fieldspace-backup-none.json"}, "restore failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := server.handleFieldspaceRestore(ctx, &sdk.CallToolRequest{}, tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("error = %v, want %q", err, tt.msg)
			}
		})
	}
}
