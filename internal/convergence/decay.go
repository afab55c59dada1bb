package convergence

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// DecayAfter returns t0 * factor^n, the tension after n decay steps.
func DecayAfter(t0, factor float64, n int) float64 {
	if n <= 0 {
		return t0
	}
	return t0 * math.Pow(factor, float64(n))
}

// StepsToCoherence predicts how many decay steps take t0 below threshold:
// ceil(ln(threshold/t0) / ln(factor)). Returns 0 when t0 is already below
// threshold, and -1 when the tension can never get there (t0 not finite,
// or factor outside (0,1)).
func StepsToCoherence(t0, factor, threshold float64) int {
	if t0 < threshold {
		return 0
	}
	if math.IsInf(t0, 0) || math.IsNaN(t0) || factor <= 0 || factor >= 1 {
		return -1
	}
	n := math.Log(threshold/t0) / math.Log(factor)
	steps := int(math.Ceil(n))
	if float64(steps) == n {
		// t0*factor^n lands exactly on the threshold, which is not below it.
		steps++
	}
	return steps
}

// RandomTension draws an initial tension in [0,1) from a seeded generator.
// The same seed always yields the same tension.
func RandomTension(seed int64) float64 {
	r := rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))
	return r.Float64()
}

// ErrInvalidTension is returned when an initial tension is outside [0,1).
var ErrInvalidTension = errors.New("initial tension must be in [0,1)")

// ValidateTension checks a caller-supplied initial tension.
func ValidateTension(t float64) error {
	if math.IsNaN(t) || t < 0 || t >= 1 {
		return fmt.Errorf("%w, got %v", ErrInvalidTension, t)
	}
	return nil
}

// ResolveTension picks the initial tension for a run. An explicit tension
// wins; otherwise it is drawn from seed, or from fallbackSeed when seed is
// nil. The returned seed is nil when the tension was explicit.
func ResolveTension(tension *float64, seed *int64, fallbackSeed int64) (float64, *int64, error) {
	if tension != nil {
		if err := ValidateTension(*tension); err != nil {
			return 0, nil, err
		}
		return *tension, nil, nil
	}

	s := fallbackSeed
	if seed != nil {
		s = *seed
	}
	return RandomTension(s), &s, nil
}
