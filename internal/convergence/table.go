package convergence

import (
	"strconv"

	"github.com/nvandessel/fieldspace/internal/constants"
)

// DigitTable is the fixed sequence walked by the recursion index.
var DigitTable = []int{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5, 8, 9, 7, 9, 3}

// Label classifies a table digit.
type Label string

const (
	// LabelNone means the digit produced no operator.
	LabelNone Label = ""

	// LabelTriangleCenter is assigned to digits divisible by 3.
	LabelTriangleCenter Label = "triangle_center"

	// LabelPolyhedron is assigned to digits divisible by 5 but not by 3.
	LabelPolyhedron Label = "polyhedron"
)

// Classify maps a digit to its label. The divisible-by-3 test wins,
// so 0 (and 15, 30, ...) classify as triangle_center.
func Classify(digit int) Label {
	switch {
	case digit%3 == 0:
		return LabelTriangleCenter
	case digit%5 == 0:
		return LabelPolyhedron
	default:
		return LabelNone
	}
}

// OperatorName synthesizes the log entry for a classified digit,
// e.g. "Operator_polyhedron_0".
func OperatorName(label Label, count int) string {
	return constants.OperatorPrefix + string(label) + "_" + strconv.Itoa(count)
}

// TableEntry describes one position of a digit table.
type TableEntry struct {
	Index int   `json:"index"`
	Digit int   `json:"digit"`
	Label Label `json:"label,omitempty"`
}

// DescribeTable returns every entry of table with its label.
func DescribeTable(table []int) []TableEntry {
	entries := make([]TableEntry, len(table))
	for i, d := range table {
		entries[i] = TableEntry{Index: i, Digit: d, Label: Classify(d)}
	}
	return entries
}
