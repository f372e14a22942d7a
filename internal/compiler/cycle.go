package compiler

import (
	"fmt"
	"slices"
	"strings"
)

// CycleWarning represents a cycle among `after` declarations.
//
// Cycles are warnings, not errors: the engine still processes the batch by
// degrading its schedule to the precedence chain.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["t1", "t2", "t1"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning"
}

// AnalyzeCycles performs static cycle analysis on a batch's explicit
// dependencies.
//
// The algorithm:
//  1. Build the transaction -> predecessor graph from `after` lists
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 as a cycle warning
//
// Dependencies on ids outside the batch are ignored. Self-dependencies are
// rejected at compile time, so single-node components are never cycles.
// An acyclic batch returns an empty warning list.
func AnalyzeCycles(b *Batch) []CycleWarning {
	if b == nil || len(b.Transactions) == 0 {
		return []CycleWarning{}
	}

	graph := buildDependencyGraph(b)
	warnings := []CycleWarning{}
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	return warnings
}

// dependencyGraph maps a transaction id to the ids it waits for.
type dependencyGraph map[string][]string

func buildDependencyGraph(b *Batch) dependencyGraph {
	known := make(map[string]bool, len(b.Transactions))
	for _, tx := range b.Transactions {
		known[tx.ID] = true
	}

	graph := make(dependencyGraph, len(b.Transactions))
	for _, tx := range b.Transactions {
		// Initialize with empty slice (ensures node exists in graph)
		graph[tx.ID] = []string{}
		for _, dep := range tx.DependsOn {
			if known[dep] {
				graph[tx.ID] = append(graph[tx.ID], dep)
			}
		}
		slices.Sort(graph[tx.ID])
	}
	return graph
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so the result is deterministic.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack into an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("dependency cycle: %s (scheduled serially)", strings.Join(path, " -> ")),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path through an SCC, starting at its
// smallest id and following edges to other members until it returns.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool, len(scc))
	for _, node := range scc {
		sccSet[node] = true
	}

	start := slices.Min(scc)
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
