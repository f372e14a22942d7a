package graph

import (
	"fmt"

	"github.com/heimdalr/dag"
)

// Reduce returns the transitive reduction of the edge set: the fewest edges
// that imply the same ordering. Levels are unaffected.
func (g *Graph) Reduce() ([]Edge, error) {
	d := dag.NewDAG()
	for _, tx := range g.txs {
		if err := d.AddVertexByID(tx.ID, tx.ID); err != nil {
			return nil, fmt.Errorf("add vertex %s: %w", tx.ID, err)
		}
	}
	for _, e := range g.Edges() {
		if err := d.AddEdge(e.From, e.To); err != nil {
			return nil, fmt.Errorf("add edge %s -> %s: %w", e.From, e.To, err)
		}
	}

	d.ReduceTransitively()

	var out []Edge
	for _, tx := range g.txs {
		children, err := d.GetChildren(tx.ID)
		if err != nil {
			return nil, fmt.Errorf("children of %s: %w", tx.ID, err)
		}
		for _, to := range g.succ[tx.ID] {
			if _, ok := children[to]; ok {
				out = append(out, Edge{From: tx.ID, To: to})
			}
		}
	}
	return out, nil
}
