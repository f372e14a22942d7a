// Package graph builds the precedence graph of a transaction batch and
// derives its executable levels.
//
// Nodes are transaction ids; an edge a -> b means b must execute after a.
// Edges come from access conflicts (always from the lower (Seq, ID) to the
// higher) and from explicit DependsOn declarations. If the combined edge set
// contains a cycle, the graph degrades to a single chain in precedence order:
// every transaction gets its own level and correctness is preserved at the
// cost of parallelism.
//
// Build never fails. Every transaction appears in exactly one level.
package graph
