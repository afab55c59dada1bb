package main

import (
	"encoding/json"
	"fmt"

	"github.com/nvandessel/fieldspace/internal/constants"
	"github.com/nvandessel/fieldspace/internal/convergence"
	"github.com/nvandessel/fieldspace/internal/visualization"
	"github.com/spf13/cobra"
)

func newTableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Show the digit table and the label of every position",
		Long: `Show the fixed digit table walked by the recursion index.

Digits divisible by 3 are labeled triangle_center; digits divisible by 5
(and not by 3) are labeled polyhedron. Every other digit produces no
operator.

With --dot the table is printed as a Graphviz cycle. --iterations
annotates each position with how often a run of that length reads it:
  fieldspace table --dot --iterations 32 | dot -Tsvg > table.svg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			dotOut, _ := cmd.Flags().GetBool("dot")
			iterations, _ := cmd.Flags().GetInt("iterations")
			entries := convergence.DescribeTable(convergence.DigitTable)

			if iterations < 0 {
				return fmt.Errorf("iterations must be non-negative, got %d", iterations)
			}

			if dotOut {
				var visits []int
				if iterations > 0 {
					visits = visualization.Visits(len(entries), iterations)
				}
				fmt.Fprint(cmd.OutOrStdout(), visualization.RenderDOT(entries, visits))
				return nil
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"entries": entries,
					"count":   len(entries),
				})
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-6s %-6s %s\n", "INDEX", "DIGIT", "LABEL")
			labeled := 0
			for _, e := range entries {
				label := string(e.Label)
				if e.Label == convergence.LabelNone {
					label = "-"
				} else {
					labeled++
				}
				fmt.Fprintf(w, "%-6d %-6d %s\n", e.Index, e.Digit, label)
			}
			fmt.Fprintf(w, "\n%d of %d positions synthesize an operator.\n", labeled, len(entries))
			return nil
		},
	}

	cmd.Flags().Bool("dot", false, "Print the table as a Graphviz DOT cycle")
	cmd.Flags().Int("iterations", 0, "With --dot, annotate visit counts for a run of this many iterations")

	return cmd
}

func newAxiomCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "axiom",
		Short: "Print the genesis axiom",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"axiom": constants.GenesisAxiom})
			}
			fmt.Fprintln(cmd.OutOrStdout(), constants.GenesisAxiom)
			return nil
		},
	}
}
