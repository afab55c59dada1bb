package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditFile is the name of the tool audit log under the state directory.
const AuditFile = "audit.jsonl"

// AuditEntry represents a single audit log entry for an MCP tool invocation.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // "success" or "error"
	Error      string            `json:"error,omitempty"`
	RunIDs     []string          `json:"run_ids,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// AuditLogger appends audit entries to a JSONL file. It is safe for
// concurrent use. A nil AuditLogger is safe to use; all methods are no-ops
// on nil receiver.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewAuditLogger opens stateDir/audit.jsonl for append. If the file cannot be
// created, a warning is printed to stderr and nil is returned (non-fatal).
func NewAuditLogger(stateDir string) *AuditLogger {
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot create audit log directory %s: %v\n", stateDir, err)
		return nil
	}

	path := filepath.Join(stateDir, AuditFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open audit log %s: %v\n", path, err)
		return nil
	}

	return &AuditLogger{file: f}
}

// Log appends an entry as a single line. Safe to call on nil receiver.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return
	}
	_, _ = a.file.Write(data)
}

// Close closes the audit log file. Safe to call on nil receiver or twice.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// sanitizeToolParams renders tool parameters for the audit log.
// Known parameters are logged with their values and seed lists only by
// length. Unknown keys are dropped and omitted optionals are skipped.
// A "_param_count" key is always included.
func sanitizeToolParams(params map[string]any) map[string]string {
	if params == nil {
		return nil
	}

	safeValueParams := map[string]bool{
		"variables":      true,
		"clauses":        true,
		"tension":        true,
		"seed":           true,
		"max_iterations": true,
		"limit":          true,
		"save":           true,
		"id":             true,
		"file":           true,
		"mode":           true,
		"no_compress":    true,
	}

	result := make(map[string]string)
	count := 0
	for key, val := range params {
		if isUnset(val) {
			continue
		}
		count++
		switch {
		case key == "seeds":
			if seeds, ok := val.([]int64); ok {
				result[key] = fmt.Sprintf("(%d)", len(seeds))
			}
		case safeValueParams[key]:
			result[key] = formatParam(val)
		}
	}
	result["_param_count"] = fmt.Sprintf("%d", count)

	return result
}

// isUnset reports whether an optional parameter was omitted.
func isUnset(val any) bool {
	switch v := val.(type) {
	case nil:
		return true
	case *float64:
		return v == nil
	case *int64:
		return v == nil
	default:
		return false
	}
}

// formatParam dereferences optional parameters.
func formatParam(val any) string {
	switch v := val.(type) {
	case *float64:
		return fmt.Sprintf("%v", *v)
	case *int64:
		return fmt.Sprintf("%d", *v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// auditTool logs a tool invocation to the audit log.
func (s *Server) auditTool(toolName string, start time.Time, err error, params map[string]string, runIDs ...string) {
	status := "success"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}

	s.auditLogger.Log(AuditEntry{
		Timestamp:  start,
		Tool:       toolName,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     status,
		Error:      errMsg,
		RunIDs:     runIDs,
		Params:     params,
	})
}
