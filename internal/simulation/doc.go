// Package simulation orchestrates convergence runs end to end: resolving the
// initial tension, wiring log and trace observers, running the engine, and
// persisting the result to a RunStore.
//
// Both the CLI and the MCP server execute runs through a Runner, so a run
// started from either surface is recorded the same way.
//
// Usage:
//
//	r, err := simulation.NewRunner(cfg, simulation.Options{Store: s, Logger: logger})
//	if err != nil {
//	    return err
//	}
//	out, err := r.Execute(ctx, simulation.Request{Variables: 7, Clauses: 12, Save: true})
//
// Sweep repeats a request over a list of seeds and summarizes the spread of
// iteration counts and final tensions.
package simulation
