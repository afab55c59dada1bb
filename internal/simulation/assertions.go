package simulation

import (
	"strconv"
	"strings"
	"testing"

	"github.com/nvandessel/fieldspace/internal/constants"
)

// AssertConverged asserts that the run ended below its threshold.
func AssertConverged(t *testing.T, out *Outcome) {
	t.Helper()
	if !out.Run.Converged {
		t.Errorf("AssertConverged: run %s stopped after %d iterations at tension %.6f",
			out.Run.ID, out.Run.Iterations, out.Run.Report.FinalTension)
	}
}

// AssertTensionNonIncreasing asserts that no recorded step raised the tension.
// The outcome must come from a request with RecordSteps set.
func AssertTensionNonIncreasing(t *testing.T, out *Outcome) {
	t.Helper()
	if len(out.Steps) == 0 && out.Run.Iterations > 0 {
		t.Fatalf("AssertTensionNonIncreasing: run %s has no recorded steps", out.Run.ID)
	}
	for _, ev := range out.Steps {
		if ev.TensionAfter > ev.TensionBefore {
			t.Errorf("AssertTensionNonIncreasing: iteration %d: tension rose %.6f -> %.6f",
				ev.Iteration, ev.TensionBefore, ev.TensionAfter)
		}
	}
}

// AssertOperatorsNumbered asserts that operators in the retained log carry
// strictly increasing, gap-free suffixes.
func AssertOperatorsNumbered(t *testing.T, out *Outcome) {
	t.Helper()
	if out.Result.State == nil {
		t.Fatal("AssertOperatorsNumbered: outcome has no final state")
	}
	next := -1
	for _, entry := range out.Result.State.Log.Entries() {
		if !strings.HasPrefix(entry, constants.OperatorPrefix) {
			continue
		}
		n := operatorSuffix(entry)
		if n < 0 {
			t.Errorf("AssertOperatorsNumbered: malformed operator %q", entry)
			continue
		}
		if next >= 0 && n != next {
			t.Errorf("AssertOperatorsNumbered: got %q, want suffix %d", entry, next)
		}
		next = n + 1
	}
}

// operatorSuffix parses the trailing counter of an operator name, or -1.
func operatorSuffix(name string) int {
	i := strings.LastIndexByte(name, '_')
	if i < 0 || i == len(name)-1 {
		return -1
	}
	digits := name[i+1:]
	if digits[0] < '0' || digits[0] > '9' {
		return -1
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return -1
	}
	return n
}
