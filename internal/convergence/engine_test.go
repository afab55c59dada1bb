package convergence

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nvandessel/fieldspace/internal/constants"
	"github.com/nvandessel/fieldspace/internal/logging"
)

// recorder captures observer callbacks.
type recorder struct {
	steps     []StepEvent
	completed []Result
}

func (r *recorder) OnStep(ev StepEvent) { r.steps = append(r.steps, ev) }
func (r *recorder) OnComplete(res Result) { r.completed = append(r.completed, res) }

func newTestEngine(t *testing.T, obs Observer) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig(), obs)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestNewEngine_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"empty table", func(c *Config) { c.Table = nil }, true},
		{"decay factor one", func(c *Config) { c.DecayFactor = 1 }, true},
		{"decay factor zero", func(c *Config) { c.DecayFactor = 0 }, true},
		{"zero threshold", func(c *Config) { c.Threshold = 0 }, true},
		{"zero max iterations", func(c *Config) { c.MaxIterations = 0 }, true},
		{"negative history capacity", func(c *Config) { c.HistoryCapacity = -1 }, true},
		{"unbounded history", func(c *Config) { c.HistoryCapacity = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := NewEngine(cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewEngine() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewEngine_EmptyTableSentinel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Table = []int{}
	_, err := NewEngine(cfg, nil)
	if !errors.Is(err, ErrEmptyTable) {
		t.Errorf("NewEngine() error = %v, want ErrEmptyTable", err)
	}
}

func TestNewEngine_CopiesTable(t *testing.T) {
	table := []int{3, 5}
	cfg := DefaultConfig()
	cfg.Table = table
	e, err := NewEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	table[0] = 1
	if e.Config().Table[0] != 3 {
		t.Error("engine should not alias the caller's table")
	}
}

func TestRun_EndToEndHalf(t *testing.T) {
	e := newTestEngine(t, nil)
	res := e.Run(0.5, 10, 20)

	if res.Iterations != 32 {
		t.Errorf("Iterations = %d, want 32", res.Iterations)
	}
	if !res.Converged {
		t.Error("expected coherence")
	}
	want := 0.5 * math.Pow(0.95, 32)
	if math.Abs(res.Report.FinalTension-want) > 1e-12 {
		t.Errorf("FinalTension = %v, want %v", res.Report.FinalTension, want)
	}
	if res.Report.FinalTension >= 0.1 {
		t.Errorf("FinalTension = %v, want < 0.1", res.Report.FinalTension)
	}
	// 32 steps cover the table twice; each pass labels 10 digits.
	if res.Report.OperatorCount != 20 {
		t.Errorf("OperatorCount = %d, want 20", res.Report.OperatorCount)
	}
	if res.Report.HistoryLength != 52 {
		t.Errorf("HistoryLength = %d, want 52", res.Report.HistoryLength)
	}
	if len(res.State.Variables) != 10 || len(res.State.Clauses) != 20 {
		t.Errorf("buffers = %d/%d, want 10/20", len(res.State.Variables), len(res.State.Clauses))
	}
}

func TestRun_TerminationBound(t *testing.T) {
	e := newTestEngine(t, nil)
	for _, t0 := range []float64{0.1, 0.1000001, 0.15, 0.3, 0.5, 0.75, 0.9, 0.99, 0.999999} {
		res := e.Run(t0, 0, 0)
		want := StepsToCoherence(t0, constants.DecayFactor, constants.CoherenceThreshold)
		if res.Iterations != want {
			t.Errorf("t0=%v: Iterations = %d, want %d", t0, res.Iterations, want)
		}
		if !res.Converged {
			t.Errorf("t0=%v: expected coherence", t0)
		}
	}
}

func TestRun_AlreadyCoherent(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(t, rec)

	for _, t0 := range []float64{0, 0.05, 0.0999999} {
		res := e.Run(t0, 3, 3)
		if res.Iterations != 0 {
			t.Errorf("t0=%v: Iterations = %d, want 0", t0, res.Iterations)
		}
		if res.Report.FinalTension != t0 {
			t.Errorf("t0=%v: FinalTension = %v", t0, res.Report.FinalTension)
		}
		if res.Report.HistoryLength != 0 || res.Report.OperatorCount != 0 {
			t.Errorf("t0=%v: report = %+v, want empty", t0, res.Report)
		}
	}
	if len(rec.steps) != 0 {
		t.Errorf("OnStep called %d times, want 0", len(rec.steps))
	}
	if len(rec.completed) != 3 {
		t.Errorf("OnComplete called %d times, want 3", len(rec.completed))
	}
}

func TestRun_TensionFollowsGeometricDecay(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(t, rec)
	t0 := 0.87
	e.Run(t0, 0, 0)

	for _, ev := range rec.steps {
		want := DecayAfter(t0, 0.95, ev.Iteration)
		if math.Abs(ev.TensionAfter-want) > 1e-12 {
			t.Errorf("iteration %d: tension = %v, want %v", ev.Iteration, ev.TensionAfter, want)
		}
		if ev.TensionAfter > ev.TensionBefore {
			t.Errorf("iteration %d: tension increased %v -> %v", ev.Iteration, ev.TensionBefore, ev.TensionAfter)
		}
		if ev.Fitness <= 0 {
			t.Errorf("iteration %d: fitness = %v, want > 0", ev.Iteration, ev.Fitness)
		}
	}
}

func TestRun_IterationCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 5
	e, err := NewEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	res := e.Run(0.9, 0, 0)
	if res.Iterations != 5 {
		t.Errorf("Iterations = %d, want 5", res.Iterations)
	}
	if res.Converged {
		t.Error("expected cap to stop the loop before coherence")
	}
}

func TestRun_FirstOperator(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(t, rec)
	res := e.Run(0.9, 0, 0)

	wantDigits := []int{1, 4, 1, 5}
	for i, d := range wantDigits {
		ev := rec.steps[i]
		if ev.Index != i+1 || ev.Digit != d {
			t.Errorf("step %d: index/digit = %d/%d, want %d/%d", i+1, ev.Index, ev.Digit, i+1, d)
		}
	}
	for i := 0; i < 3; i++ {
		if rec.steps[i].Operator != "" {
			t.Errorf("step %d: unexpected operator %q", i+1, rec.steps[i].Operator)
		}
	}
	if rec.steps[3].Operator != "Operator_polyhedron_0" {
		t.Errorf("step 4 operator = %q, want Operator_polyhedron_0", rec.steps[3].Operator)
	}

	wantLog := []string{
		"Tension reduced.",
		"Tension reduced.",
		"Tension reduced.",
		"Operator_polyhedron_0",
		"Tension reduced.",
		"Operator_triangle_center_1",
		"Tension reduced.",
	}
	if diff := cmp.Diff(wantLog, res.State.Log.Entries()[:len(wantLog)]); diff != "" {
		t.Errorf("log prefix mismatch (-want +got):\n%s", diff)
	}
}

func TestStep_IndexCycles(t *testing.T) {
	e := newTestEngine(t, nil)
	s := e.NewState(1e9, 0, 0)

	for k := 1; k <= 50; k++ {
		ev := e.Step(s)
		wantIndex := k % len(DigitTable)
		if ev.Index != wantIndex || s.RecursionIndex != wantIndex {
			t.Fatalf("step %d: index = %d, want %d", k, ev.Index, wantIndex)
		}
		if ev.Digit != DigitTable[wantIndex] {
			t.Fatalf("step %d: digit = %d, want %d", k, ev.Digit, DigitTable[wantIndex])
		}
		if ev.Label != Classify(ev.Digit) {
			t.Fatalf("step %d: label = %q, want %q", k, ev.Label, Classify(ev.Digit))
		}
	}
}

func TestStep_CoherentStateDoesNotDecay(t *testing.T) {
	e := newTestEngine(t, nil)
	s := e.NewState(0.05, 0, 0)

	ev := e.Step(s)
	if s.Tension != 0.05 {
		t.Errorf("Tension = %v, want unchanged 0.05", s.Tension)
	}
	if ev.Fitness != 0 {
		t.Errorf("Fitness = %v, want 0", ev.Fitness)
	}
	if s.RecursionIndex != 1 {
		t.Errorf("RecursionIndex = %d, want 1", s.RecursionIndex)
	}
	if s.Log.Total() != 0 {
		t.Errorf("log has %d entries, want 0", s.Log.Total())
	}
}

func TestRun_HistoryRetention(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryCapacity = 5
	e, err := NewEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	res := e.Run(0.5, 0, 0)
	if res.State.Log.Len() != 5 {
		t.Errorf("retained = %d, want 5", res.State.Log.Len())
	}
	if res.Report.HistoryLength != 52 {
		t.Errorf("HistoryLength = %d, want 52 regardless of retention", res.Report.HistoryLength)
	}
}

func TestRun_NegativeBuffersClamped(t *testing.T) {
	e := newTestEngine(t, nil)
	res := e.Run(0.2, -4, -1)
	if len(res.State.Variables) != 0 || len(res.State.Clauses) != 0 {
		t.Errorf("buffers = %d/%d, want 0/0", len(res.State.Variables), len(res.State.Clauses))
	}
}

func TestReport_JSON(t *testing.T) {
	data, err := json.Marshal(Report{FinalTension: 0.09, OperatorCount: 2, HistoryLength: 7})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := map[string]any{"final_tension": 0.09, "operator_count": 2.0, "history_length": 7.0}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("report JSON mismatch (-want +got):\n%s", diff)
	}
}

func TestObservers_FanOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	e := newTestEngine(t, Observers{a, nil, b})
	res := e.Run(0.3, 0, 0)

	for name, r := range map[string]*recorder{"a": a, "b": b} {
		if len(r.steps) != res.Iterations {
			t.Errorf("%s: %d steps observed, want %d", name, len(r.steps), res.Iterations)
		}
		if len(r.completed) != 1 {
			t.Errorf("%s: OnComplete called %d times, want 1", name, len(r.completed))
		}
	}
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	e := newTestEngine(t, LogObserver{Logger: logging.NewLogger("trace", &buf)})
	e.Run(0.5, 0, 0)

	out := buf.String()
	for _, want := range []string{"level=TRACE", "msg=step", "operator=Operator_polyhedron_0", "coherence reached", "iterations=32"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q", want)
		}
	}
}

func TestLogObserver_DebugHidesSteps(t *testing.T) {
	var buf bytes.Buffer
	e := newTestEngine(t, LogObserver{Logger: logging.NewLogger("debug", &buf)})
	e.Run(0.5, 0, 0)

	if strings.Contains(buf.String(), "msg=step") {
		t.Error("steps should only be logged at trace level")
	}
	if !strings.Contains(buf.String(), "coherence reached") {
		t.Errorf("completion missing from %q", buf.String())
	}
}

func TestLogObserver_CapWarning(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.MaxIterations = 2
	e, err := NewEngine(cfg, LogObserver{Logger: logging.NewLogger("info", &buf)})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	e.Run(0.9, 0, 0)

	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("expected a warning when the cap is hit, got %q", buf.String())
	}
	if strings.Contains(buf.String(), "msg=step") {
		t.Error("steps should not be logged at info level")
	}
}

func TestLogObserver_NilLogger(t *testing.T) {
	e := newTestEngine(t, LogObserver{})
	e.Run(0.5, 0, 0)
}

func TestTraceObserver(t *testing.T) {
	dir := t.TempDir()
	tracer := logging.NewStepTracer(dir, "debug")
	defer tracer.Close()

	e := newTestEngine(t, TraceObserver{Tracer: tracer, RunID: "run-trace"})
	res := e.Run(0.15, 0, 0)

	data, err := os.ReadFile(filepath.Join(dir, logging.StepTraceFile))
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != res.Iterations+1 {
		t.Fatalf("trace has %d lines, want %d", len(lines), res.Iterations+1)
	}

	var last map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatalf("parse last line: %v", err)
	}
	if last["event"] != "complete" || last["converged"] != true {
		t.Errorf("last trace entry = %v", last)
	}
	if last["run_id"] != "run-trace" {
		t.Errorf("run_id = %v, want run-trace", last["run_id"])
	}
}

func TestTraceObserver_NilTracer(t *testing.T) {
	e := newTestEngine(t, TraceObserver{})
	e.Run(0.5, 0, 0)
}
