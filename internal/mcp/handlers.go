package mcp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/fieldspace/internal/backup"
	"github.com/nvandessel/fieldspace/internal/constants"
	"github.com/nvandessel/fieldspace/internal/convergence"
	"github.com/nvandessel/fieldspace/internal/simulation"
	"github.com/nvandessel/fieldspace/internal/store"
)

const (
	tableResourceURI   = "fieldspace://table"
	runResourcePrefix  = "fieldspace://runs/"
	runResourcePattern = runResourcePrefix + "{id}"
)

// registerTools registers all fieldspace MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "fieldspace_run",
		Description: "Run the convergence loop once and store the result. Returns the final report (final_tension, operator_count, history_length) and the tail of the operator log",
	}, s.handleFieldspaceRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "fieldspace_sweep",
		Description: "Run the convergence loop once per seed and summarize iteration counts and final tensions",
	}, s.handleFieldspaceSweep)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "fieldspace_runs",
		Description: "List stored runs, newest first",
	}, s.handleFieldspaceRuns)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "fieldspace_show",
		Description: "Show a stored run by ID",
	}, s.handleFieldspaceShow)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "fieldspace_table",
		Description: "Describe the digit table walked by the loop and the loop parameters",
	}, s.handleFieldspaceTable)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "fieldspace_backup",
		Description: "Export every stored run to a backup file in the state directory and prune old backups",
	}, s.handleFieldspaceBackup)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "fieldspace_restore",
		Description: "Import runs from a backup file in the state directory (merge or replace)",
	}, s.handleFieldspaceRestore)
}

// registerResources registers read-only MCP resources.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         tableResourceURI,
		Name:        "fieldspace-table",
		Description: "The digit table with the label of every position.",
		MIMEType:    "text/markdown",
	}, s.handleTableResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: runResourcePattern,
		Name:        "fieldspace-run",
		Description: "Full details for a stored run.",
		MIMEType:    "text/markdown",
	}, s.handleRunResource)
}

// handleFieldspaceRun implements the fieldspace_run tool.
func (s *Server) handleFieldspaceRun(ctx context.Context, req *sdk.CallToolRequest, args FieldspaceRunInput) (_ *sdk.CallToolResult, _ FieldspaceRunOutput, retErr error) {
	start := time.Now()
	var runID string
	defer func() {
		s.auditTool("fieldspace_run", start, retErr, sanitizeToolParams(map[string]any{
			"variables": args.Variables, "clauses": args.Clauses, "tension": args.Tension,
			"seed": args.Seed, "max_iterations": args.MaxIterations,
		}), runID)
	}()

	if err := s.toolLimiters.Check("fieldspace_run"); err != nil {
		return nil, FieldspaceRunOutput{}, err
	}

	out, err := s.runner.Execute(ctx, simulation.Request{
		Variables:     args.Variables,
		Clauses:       args.Clauses,
		Tension:       args.Tension,
		Seed:          args.Seed,
		MaxIterations: args.MaxIterations,
		Save:          true,
	})
	if err != nil {
		return nil, FieldspaceRunOutput{}, fmt.Errorf("run failed: %w", err)
	}
	runID = out.Run.ID

	return nil, FieldspaceRunOutput{
		RunID:          out.Run.ID,
		InitialTension: out.Run.InitialTension,
		Seed:           out.Run.Seed,
		Iterations:     out.Run.Iterations,
		Converged:      out.Run.Converged,
		Report:         out.Run.Report,
		RecentLog:      out.Run.RecentLog,
		Message:        runMessage(out.Run),
	}, nil
}

// handleFieldspaceSweep implements the fieldspace_sweep tool.
func (s *Server) handleFieldspaceSweep(ctx context.Context, req *sdk.CallToolRequest, args FieldspaceSweepInput) (_ *sdk.CallToolResult, _ FieldspaceSweepOutput, retErr error) {
	start := time.Now()
	var runIDs []string
	defer func() {
		s.auditTool("fieldspace_sweep", start, retErr, sanitizeToolParams(map[string]any{
			"seeds": args.Seeds, "variables": args.Variables, "clauses": args.Clauses,
			"max_iterations": args.MaxIterations, "save": args.Save,
		}), runIDs...)
	}()

	if err := s.toolLimiters.Check("fieldspace_sweep"); err != nil {
		return nil, FieldspaceSweepOutput{}, err
	}
	if len(args.Seeds) > constants.MaxSweepSeeds {
		return nil, FieldspaceSweepOutput{}, fmt.Errorf("too many seeds: %d (max %d)", len(args.Seeds), constants.MaxSweepSeeds)
	}

	summary, outcomes, err := s.runner.Sweep(ctx, simulation.Request{
		Variables:     args.Variables,
		Clauses:       args.Clauses,
		MaxIterations: args.MaxIterations,
		Save:          args.Save,
	}, args.Seeds)
	// Runs saved before a failure are still audited.
	for _, out := range outcomes {
		if out.Saved {
			runIDs = append(runIDs, out.Run.ID)
		}
	}
	if err != nil {
		return nil, FieldspaceSweepOutput{}, fmt.Errorf("sweep failed: %w", err)
	}

	runs := make([]RunListItem, 0, len(outcomes))
	for _, out := range outcomes {
		runs = append(runs, toListItem(out.Run))
	}

	return nil, FieldspaceSweepOutput{
		Summary: summary,
		Runs:    runs,
		Message: fmt.Sprintf("%d of %d runs converged in %d-%d iterations (mean %.1f)",
			summary.Converged, summary.Runs, summary.MinIterations, summary.MaxIterations, summary.MeanIterations),
	}, nil
}

// handleFieldspaceRuns implements the fieldspace_runs tool.
func (s *Server) handleFieldspaceRuns(ctx context.Context, req *sdk.CallToolRequest, args FieldspaceRunsInput) (_ *sdk.CallToolResult, _ FieldspaceRunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("fieldspace_runs", start, retErr, sanitizeToolParams(map[string]any{
			"limit": args.Limit,
		}))
	}()

	if err := s.toolLimiters.Check("fieldspace_runs"); err != nil {
		return nil, FieldspaceRunsOutput{}, err
	}

	limit := args.Limit
	if limit <= 0 {
		limit = constants.DefaultListLimit
	}

	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, FieldspaceRunsOutput{}, fmt.Errorf("failed to list runs: %w", err)
	}

	items := make([]RunListItem, 0, len(runs))
	for _, run := range runs {
		items = append(items, toListItem(run))
	}

	return nil, FieldspaceRunsOutput{
		Runs:  items,
		Count: len(items),
	}, nil
}

// handleFieldspaceShow implements the fieldspace_show tool.
func (s *Server) handleFieldspaceShow(ctx context.Context, req *sdk.CallToolRequest, args FieldspaceShowInput) (_ *sdk.CallToolResult, _ FieldspaceShowOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("fieldspace_show", start, retErr, sanitizeToolParams(map[string]any{
			"id": args.ID,
		}))
	}()

	if err := s.toolLimiters.Check("fieldspace_show"); err != nil {
		return nil, FieldspaceShowOutput{}, err
	}
	if args.ID == "" {
		return nil, FieldspaceShowOutput{}, fmt.Errorf("run ID is required")
	}

	run, err := s.store.GetRun(ctx, args.ID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return nil, FieldspaceShowOutput{}, fmt.Errorf("run not found: %s", args.ID)
		}
		return nil, FieldspaceShowOutput{}, fmt.Errorf("failed to get run: %w", err)
	}

	return nil, FieldspaceShowOutput{
		Run:       toListItem(*run),
		Variables: run.Variables,
		Clauses:   run.Clauses,
		RecentLog: run.RecentLog,
	}, nil
}

// handleFieldspaceTable implements the fieldspace_table tool.
func (s *Server) handleFieldspaceTable(ctx context.Context, req *sdk.CallToolRequest, args FieldspaceTableInput) (_ *sdk.CallToolResult, _ FieldspaceTableOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("fieldspace_table", start, retErr, nil)
	}()

	if err := s.toolLimiters.Check("fieldspace_table"); err != nil {
		return nil, FieldspaceTableOutput{}, err
	}

	cfg := s.runner.Config()
	return nil, FieldspaceTableOutput{
		Entries:       convergence.DescribeTable(cfg.Table),
		DecayFactor:   cfg.DecayFactor,
		Threshold:     cfg.Threshold,
		MaxIterations: cfg.MaxIterations,
	}, nil
}

// handleTableResource renders the digit table as markdown.
func (s *Server) handleTableResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	cfg := s.runner.Config()

	var sb strings.Builder
	sb.WriteString("# Digit Table\n\n")
	sb.WriteString("| Index | Digit | Label |\n|---|---|---|\n")
	for _, e := range convergence.DescribeTable(cfg.Table) {
		label := string(e.Label)
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(&sb, "| %d | %d | %s |\n", e.Index, e.Digit, label)
	}
	fmt.Fprintf(&sb, "\n*decay factor %.2f, threshold %.2f, cap %d*\n", cfg.DecayFactor, cfg.Threshold, cfg.MaxIterations)

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      tableResourceURI,
				MIMEType: "text/markdown",
				Text:     sb.String(),
			},
		},
	}, nil
}

// handleRunResource returns full details for a stored run.
// URI format: fieldspace://runs/{id}
func (s *Server) handleRunResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	if !strings.HasPrefix(uri, runResourcePrefix) {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}
	id := strings.TrimPrefix(uri, runResourcePrefix)
	if id == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	run, err := s.store.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return nil, fmt.Errorf("run not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Run: %s\n\n", run.ID)
	fmt.Fprintf(&sb, "**Created:** %s\n", run.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "**Inputs:** %d variables, %d clauses\n", run.Variables, run.Clauses)
	fmt.Fprintf(&sb, "**Initial tension:** %.6f", run.InitialTension)
	if run.Seed != nil {
		fmt.Fprintf(&sb, " (seed %d)", *run.Seed)
	}
	sb.WriteString("\n\n## Report\n\n")
	fmt.Fprintf(&sb, "- final_tension: %.6f\n", run.Report.FinalTension)
	fmt.Fprintf(&sb, "- operator_count: %d\n", run.Report.OperatorCount)
	fmt.Fprintf(&sb, "- history_length: %d\n", run.Report.HistoryLength)
	fmt.Fprintf(&sb, "- iterations: %d (converged: %t)\n", run.Iterations, run.Converged)

	if len(run.RecentLog) > 0 {
		sb.WriteString("\n## Recent Log\n\n")
		for _, entry := range run.RecentLog {
			fmt.Fprintf(&sb, "- %s\n", entry)
		}
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "text/markdown",
				Text:     sb.String(),
			},
		},
	}, nil
}

// handleFieldspaceBackup implements the fieldspace_backup tool.
func (s *Server) handleFieldspaceBackup(ctx context.Context, req *sdk.CallToolRequest, args FieldspaceBackupInput) (_ *sdk.CallToolResult, _ FieldspaceBackupOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("fieldspace_backup", start, retErr, sanitizeToolParams(map[string]any{
			"no_compress": args.NoCompress,
		}))
	}()

	if err := s.toolLimiters.Check("fieldspace_backup"); err != nil {
		return nil, FieldspaceBackupOutput{}, err
	}

	dir := backup.Dir(s.stateDir)
	compress := !args.NoCompress
	path := backup.GenerateBackupPath(dir)
	if !compress {
		path = backup.GenerateBackupPathV1(dir)
	}

	result, err := backup.Backup(ctx, s.store, path, compress)
	if err != nil {
		return nil, FieldspaceBackupOutput{}, fmt.Errorf("backup failed: %w", err)
	}

	deleted, err := backup.Prune(dir, backup.Retention{Keep: backup.DefaultKeep})
	if err != nil {
		s.logger.Warn("backup retention failed", "error", err)
	}

	return nil, FieldspaceBackupOutput{
		File:     filepath.Base(path),
		RunCount: len(result.Runs),
		Version:  result.Version,
		Pruned:   len(deleted),
		Message:  fmt.Sprintf("Backup created: %d run(s)", len(result.Runs)),
	}, nil
}

// handleFieldspaceRestore implements the fieldspace_restore tool.
// Only files directly inside the backup directory can be restored.
func (s *Server) handleFieldspaceRestore(ctx context.Context, req *sdk.CallToolRequest, args FieldspaceRestoreInput) (_ *sdk.CallToolResult, _ FieldspaceRestoreOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("fieldspace_restore", start, retErr, sanitizeToolParams(map[string]any{
			"file": args.File, "mode": args.Mode,
		}))
	}()

	if err := s.toolLimiters.Check("fieldspace_restore"); err != nil {
		return nil, FieldspaceRestoreOutput{}, err
	}

	if args.File == "" {
		return nil, FieldspaceRestoreOutput{}, fmt.Errorf("file is required")
	}
	if args.File != filepath.Base(args.File) || args.File == "." || args.File == ".." {
		return nil, FieldspaceRestoreOutput{}, fmt.Errorf("file must be a name inside the backup directory, got %q", args.File)
	}
	mode, err := backup.ParseRestoreMode(args.Mode)
	if err != nil {
		return nil, FieldspaceRestoreOutput{}, err
	}

	result, err := backup.Restore(ctx, s.store, filepath.Join(backup.Dir(s.stateDir), args.File), mode)
	if err != nil {
		return nil, FieldspaceRestoreOutput{}, fmt.Errorf("restore failed: %w", err)
	}

	return nil, FieldspaceRestoreOutput{
		RunsRestored: result.RunsRestored,
		RunsSkipped:  result.RunsSkipped,
		RunsDeleted:  result.RunsDeleted,
		Message:      fmt.Sprintf("Restore complete (mode: %s): %d restored, %d skipped", mode, result.RunsRestored, result.RunsSkipped),
	}, nil
}

// toListItem flattens a stored run for tool output.
func toListItem(run store.Run) RunListItem {
	item := RunListItem{
		ID:             run.ID,
		InitialTension: run.InitialTension,
		Seed:           run.Seed,
		Iterations:     run.Iterations,
		Converged:      run.Converged,
		FinalTension:   run.Report.FinalTension,
		OperatorCount:  run.Report.OperatorCount,
		HistoryLength:  run.Report.HistoryLength,
	}
	if !run.CreatedAt.IsZero() {
		item.CreatedAt = run.CreatedAt.Format(time.RFC3339)
	}
	return item
}

// runMessage summarizes a run in one line.
func runMessage(run store.Run) string {
	if run.Converged {
		return fmt.Sprintf("Coherence reached after %d iterations with %d operators synthesized",
			run.Iterations, run.Report.OperatorCount)
	}
	return fmt.Sprintf("Iteration cap reached after %d iterations; tension %.6f is still above the threshold",
		run.Iterations, run.Report.FinalTension)
}
