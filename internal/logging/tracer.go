package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StepTraceFile is the name of the JSONL trace written under the state directory.
const StepTraceFile = "steps.jsonl"

// Trace event kinds.
const (
	EventStep     = "step"
	EventComplete = "complete"
)

// StepFields describe one loop iteration.
type StepFields struct {
	Iteration     int     `json:"iteration"`
	Index         int     `json:"index"`
	Digit         int     `json:"digit"`
	Label         string  `json:"label,omitempty"`
	Operator      string  `json:"operator,omitempty"`
	TensionBefore float64 `json:"tension_before"`
	TensionAfter  float64 `json:"tension_after"`
	Fitness       float64 `json:"fitness"`
}

// SummaryFields describe a finished run.
type SummaryFields struct {
	Converged     bool    `json:"converged"`
	Iterations    int     `json:"iterations"`
	FinalTension  float64 `json:"final_tension"`
	OperatorCount int     `json:"operator_count"`
	HistoryLength int     `json:"history_length"`
}

// StepRecord is one line of the step trace. Exactly one of Step and
// Summary is set, matching Event; the other is left out of the JSON.
type StepRecord struct {
	Time  time.Time `json:"time"`
	Event string    `json:"event"`
	RunID string    `json:"run_id,omitempty"`

	*StepFields
	*SummaryFields
}

// StepTracer appends StepRecords to a JSONL file. It is safe for concurrent
// use, and every method is a no-op on a nil receiver.
type StepTracer struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewStepTracer opens dir/steps.jsonl for append, creating dir as needed.
// Tracing is off at info level, and when the file cannot be opened; both
// return nil.
func NewStepTracer(dir string, level string) *StepTracer {
	if ParseLevel(level) >= slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, StepTraceFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &StepTracer{file: f, enc: json.NewEncoder(f)}
}

// Trace writes rec as one line. A zero Time is stamped with the current UTC time.
func (st *StepTracer) Trace(rec StepRecord) {
	if st == nil {
		return
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.file == nil {
		return
	}
	_ = st.enc.Encode(rec)
}

// Close closes the trace file. Later calls to Trace are dropped.
func (st *StepTracer) Close() {
	if st == nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.file == nil {
		return
	}
	st.file.Close()
	st.file = nil
	st.enc = nil
}
