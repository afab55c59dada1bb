// Package visualization renders the digit table cycle as a Graphviz graph.
package visualization

import (
	"fmt"
	"strings"

	"github.com/nvandessel/fieldspace/internal/convergence"
)

// labelColors maps table labels to DOT fill colors.
var labelColors = map[convergence.Label]string{
	convergence.LabelTriangleCenter: "steelblue",
	convergence.LabelPolyhedron:     "goldenrod",
}

// Visits counts how often each table position is read during a run of
// the given number of iterations. The index advances before it is read,
// so iteration k reads position k mod size.
func Visits(size, iterations int) []int {
	if size <= 0 {
		return nil
	}
	visits := make([]int, size)
	if iterations <= 0 {
		return visits
	}
	full, rest := iterations/size, iterations%size
	for i := range visits {
		visits[i] = full
	}
	for k := 1; k <= rest; k++ {
		visits[k%size]++
	}
	return visits
}

// RenderDOT produces a Graphviz DOT cycle of the table entries.
// visits is optional; when it has one count per entry each node is annotated with it.
func RenderDOT(entries []convergence.TableEntry, visits []int) string {
	annotate := len(visits) == len(entries)

	var b strings.Builder
	b.WriteString("digraph fieldspace {\n")
	b.WriteString("  layout=circo;\n")
	b.WriteString("  node [shape=circle, style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	for i, e := range entries {
		color := labelColors[e.Label]
		if color == "" {
			color = "lightgray"
		}
		label := fmt.Sprintf("%d\\n%d", e.Index, e.Digit)
		if annotate {
			label += fmt.Sprintf("\\nx%d", visits[i])
		}
		tooltip := string(e.Label)
		if tooltip == "" {
			tooltip = "no operator"
		}
		fmt.Fprintf(&b, "  p%d [label=\"%s\", fillcolor=%q, tooltip=%q];\n", e.Index, label, color, tooltip)
	}
	if len(entries) > 0 {
		b.WriteString("\n")
	}

	for i, e := range entries {
		next := entries[(i+1)%len(entries)]
		fmt.Fprintf(&b, "  p%d -> p%d;\n", e.Index, next.Index)
	}

	b.WriteString("}\n")
	return b.String()
}
