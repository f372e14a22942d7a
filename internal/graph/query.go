package graph

import (
	"slices"

	"github.com/roach88/synchrony/internal/analysis"
	"github.com/roach88/synchrony/internal/ir"
)

// Len returns the number of transactions.
func (g *Graph) Len() int { return len(g.txs) }

// Nodes returns transaction ids in precedence order.
func (g *Graph) Nodes() []string {
	ids := make([]string, len(g.txs))
	for i, tx := range g.txs {
		ids[i] = tx.ID
	}
	return ids
}

// Transactions returns the transactions in precedence order.
func (g *Graph) Transactions() []*ir.Transaction {
	return append([]*ir.Transaction(nil), g.txs...)
}

// Transaction looks up a transaction by id.
func (g *Graph) Transaction(id string) (*ir.Transaction, bool) {
	r, ok := g.rank[id]
	if !ok {
		return nil, false
	}
	return g.txs[r], true
}

// Access returns the analyzed read/write sets of id.
func (g *Graph) Access(id string) (analysis.Access, bool) {
	a, ok := g.accesses[id]
	return a, ok
}

// Successors returns the ids that must run after id.
func (g *Graph) Successors(id string) []string {
	return slices.Clone(g.succ[id])
}

// Predecessors returns the ids that must run before id.
func (g *Graph) Predecessors(id string) []string {
	return slices.Clone(g.pred[id])
}

// HasEdge reports whether to must run after from.
func (g *Graph) HasEdge(from, to string) bool {
	return slices.Contains(g.succ[from], to)
}

// Edges returns every edge ordered by (From, To) precedence.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, tx := range g.txs {
		for _, to := range g.succ[tx.ID] {
			out = append(out, Edge{From: tx.ID, To: to})
		}
	}
	return out
}

// Levels returns the parallel groups in execution order.
func (g *Graph) Levels() [][]string {
	out := make([][]string, len(g.levels))
	for i, level := range g.levels {
		out[i] = slices.Clone(level)
	}
	return out
}

// LevelOf returns the level index of id, or -1.
func (g *Graph) LevelOf(id string) int {
	if l, ok := g.levelOf[id]; ok {
		return l
	}
	return -1
}

// TopoOrder flattens the levels into one serial order consistent with
// every edge.
func (g *Graph) TopoOrder() []string {
	out := make([]string, 0, len(g.txs))
	for _, level := range g.levels {
		out = append(out, level...)
	}
	return out
}

// Conflicts returns the detected access conflicts.
func (g *Graph) Conflicts() []analysis.Conflict {
	return slices.Clone(g.conflicts)
}

// Degraded reports whether a cycle forced the serial chain.
func (g *Graph) Degraded() bool { return g.degraded }

// Cycle returns the cycle that caused degradation, or nil.
func (g *Graph) Cycle() []string { return slices.Clone(g.cycle) }

// Warnings returns non-fatal messages produced while building.
func (g *Graph) Warnings() []string { return slices.Clone(g.warnings) }

// Equal reports whether g and other have the same nodes, edges and levels.
// Transaction ids are the node identity, so equality is isomorphism.
func (g *Graph) Equal(other *Graph) bool {
	if g == nil || other == nil {
		return g == other
	}
	return slices.Equal(g.Nodes(), other.Nodes()) &&
		slices.Equal(g.Edges(), other.Edges()) &&
		slices.EqualFunc(g.levels, other.levels, slices.Equal[[]string]) &&
		g.degraded == other.degraded
}
