package simulation

import (
	"context"
	"errors"
	"math"
)

// ErrNoSeeds is returned by Sweep when the seed list is empty.
var ErrNoSeeds = errors.New("sweep needs at least one seed")

// SweepSummary aggregates the outcomes of a sweep.
type SweepSummary struct {
	Runs             int     `json:"runs"`
	Converged        int     `json:"converged"`
	MinIterations    int     `json:"min_iterations"`
	MaxIterations    int     `json:"max_iterations"`
	MeanIterations   float64 `json:"mean_iterations"`
	MeanFinalTension float64 `json:"mean_final_tension"`
	TotalOperators   int     `json:"total_operators"`
}

// Sweep executes base once per seed. The request's Tension is ignored so
// that every run draws from its own seed. Cancellation is checked between
// runs; outcomes completed before an error are returned with it.
func (r *Runner) Sweep(ctx context.Context, base Request, seeds []int64) (SweepSummary, []*Outcome, error) {
	if len(seeds) == 0 {
		return SweepSummary{}, nil, ErrNoSeeds
	}

	outcomes := make([]*Outcome, 0, len(seeds))
	for _, seed := range seeds {
		if err := ctx.Err(); err != nil {
			return Summarize(outcomes), outcomes, err
		}
		req := base
		req.Tension = nil
		req.Seed = &seed
		out, err := r.Execute(ctx, req)
		if err != nil {
			return Summarize(outcomes), outcomes, err
		}
		outcomes = append(outcomes, out)
	}

	r.logger.Info("sweep complete", "runs", len(outcomes))
	return Summarize(outcomes), outcomes, nil
}

// Summarize aggregates a set of outcomes. Nil entries are skipped.
func Summarize(outcomes []*Outcome) SweepSummary {
	var sum SweepSummary
	var iterTotal, tensionTotal float64
	sum.MinIterations = math.MaxInt

	for _, out := range outcomes {
		if out == nil {
			continue
		}
		sum.Runs++
		if out.Run.Converged {
			sum.Converged++
		}
		sum.MinIterations = min(sum.MinIterations, out.Run.Iterations)
		sum.MaxIterations = max(sum.MaxIterations, out.Run.Iterations)
		sum.TotalOperators += out.Run.Report.OperatorCount
		iterTotal += float64(out.Run.Iterations)
		tensionTotal += out.Run.Report.FinalTension
	}

	if sum.Runs == 0 {
		sum.MinIterations = 0
		return sum
	}
	sum.MeanIterations = iterTotal / float64(sum.Runs)
	sum.MeanFinalTension = tensionTotal / float64(sum.Runs)
	return sum
}
