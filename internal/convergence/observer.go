package convergence

import (
	"context"
	"log/slog"

	"github.com/nvandessel/fieldspace/internal/logging"
)

// StepEvent describes one iteration of the loop.
type StepEvent struct {
	Iteration     int
	Index         int
	Digit         int
	Label         Label
	Operator      string
	TensionBefore float64
	TensionAfter  float64

	// Fitness is the tension removed by this step.
	Fitness float64
}

// Observer receives progress from Engine.Run: once per step and once at completion.
type Observer interface {
	OnStep(ev StepEvent)
	OnComplete(res Result)
}

// Observers fans events out to every non-nil observer in order.
type Observers []Observer

// OnStep implements Observer.
func (o Observers) OnStep(ev StepEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.OnStep(ev)
		}
	}
}

// OnComplete implements Observer.
func (o Observers) OnComplete(res Result) {
	for _, obs := range o {
		if obs != nil {
			obs.OnComplete(res)
		}
	}
}

// LogObserver reports progress to a slog.Logger: steps at trace level,
// completion at info (warn when the cap was hit).
type LogObserver struct {
	Logger *slog.Logger
}

// OnStep implements Observer.
func (o LogObserver) OnStep(ev StepEvent) {
	if o.Logger == nil {
		return
	}
	attrs := []any{
		"iteration", ev.Iteration,
		"index", ev.Index,
		"digit", ev.Digit,
		"tension", ev.TensionAfter,
	}
	if ev.Operator != "" {
		attrs = append(attrs, "operator", ev.Operator)
	}
	o.Logger.Log(context.Background(), logging.LevelTrace, "step", attrs...)
}

// OnComplete implements Observer.
func (o LogObserver) OnComplete(res Result) {
	if o.Logger == nil {
		return
	}
	attrs := []any{
		"iterations", res.Iterations,
		"final_tension", res.Report.FinalTension,
		"operator_count", res.Report.OperatorCount,
		"history_length", res.Report.HistoryLength,
	}
	if res.Converged {
		o.Logger.Info("coherence reached", attrs...)
	} else {
		o.Logger.Warn("iteration cap reached before coherence", attrs...)
	}
}

// TraceObserver writes every step to a StepTracer, tagged with RunID when set.
// A nil tracer is a no-op.
type TraceObserver struct {
	Tracer *logging.StepTracer
	RunID  string
}

// OnStep implements Observer.
func (o TraceObserver) OnStep(ev StepEvent) {
	o.Tracer.Trace(logging.StepRecord{
		Event: logging.EventStep,
		RunID: o.RunID,
		StepFields: &logging.StepFields{
			Iteration:     ev.Iteration,
			Index:         ev.Index,
			Digit:         ev.Digit,
			Label:         string(ev.Label),
			Operator:      ev.Operator,
			TensionBefore: ev.TensionBefore,
			TensionAfter:  ev.TensionAfter,
			Fitness:       ev.Fitness,
		},
	})
}

// OnComplete implements Observer.
func (o TraceObserver) OnComplete(res Result) {
	o.Tracer.Trace(logging.StepRecord{
		Event: logging.EventComplete,
		RunID: o.RunID,
		SummaryFields: &logging.SummaryFields{
			Converged:     res.Converged,
			Iterations:    res.Iterations,
			FinalTension:  res.Report.FinalTension,
			OperatorCount: res.Report.OperatorCount,
			HistoryLength: res.Report.HistoryLength,
		},
	})
}
