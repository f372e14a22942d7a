package graph

import (
	"fmt"
	"strings"

	"github.com/roach88/synchrony/internal/analysis"
)

// DOT renders the graph in Graphviz DOT language. Nodes are clustered by
// level and edges are labeled with the conflicting accounts.
// See: https://graphviz.org/doc/info/lang.html
func (g *Graph) DOT(name string, edges []Edge) string {
	if name == "" {
		name = "batch"
	}
	if edges == nil {
		edges = g.Edges()
	}

	labels := make(map[Edge]string, len(g.conflicts))
	for _, c := range g.conflicts {
		labels[Edge{From: c.Before, To: c.After}] = conflictLabel(c)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "digraph %q {\n", name)
	sb.WriteString("\trankdir=LR;\n")
	sb.WriteString("\tnode [shape=box, style=filled, fillcolor=\"#EEEEEE\"];\n")
	for i, level := range g.levels {
		fmt.Fprintf(&sb, "\tsubgraph cluster_level_%d {\n", i)
		fmt.Fprintf(&sb, "\t\tlabel=\"level %d\";\n", i)
		for _, id := range level {
			fmt.Fprintf(&sb, "\t\t%q;\n", id)
		}
		sb.WriteString("\t}\n")
	}
	for _, e := range edges {
		label := labels[e]
		if label == "" {
			label = "after"
		}
		fmt.Fprintf(&sb, "\t%q -> %q [label=%q, fontsize=8];\n", e.From, e.To, label)
	}
	sb.WriteString("}\n")
	return sb.String()
}

func conflictLabel(c analysis.Conflict) string {
	kinds := make([]string, len(c.Kinds))
	for i, k := range c.Kinds {
		kinds[i] = string(k)
	}
	return strings.Join(kinds, "/") + " " + strings.Join(c.Accounts, ",")
}
