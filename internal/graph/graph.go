package graph

import (
	"log/slog"
	"slices"

	"github.com/roach88/synchrony/internal/analysis"
	"github.com/roach88/synchrony/internal/ir"
)

// Edge is a "must execute after" relation: To runs after From.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is an immutable precedence graph with its level schedule.
type Graph struct {
	txs       []*ir.Transaction // precedence order
	rank      map[string]int
	accesses  map[string]analysis.Access
	conflicts []analysis.Conflict
	succ      map[string][]string
	pred      map[string][]string
	levels    [][]string
	levelOf   map[string]int
	degraded  bool
	cycle     []string
	warnings  []string
}

// Option configures Build.
type Option func(*buildConfig)

type buildConfig struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for degradation warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *buildConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Build analyzes txs and returns their precedence graph.
//
// Transaction ids are assumed unique; callers validate batches before
// building.
func Build(txs []*ir.Transaction, opts ...Option) *Graph {
	cfg := buildConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	g := newGraph(txs)
	accesses := analysis.Analyze(g.txs)
	for _, a := range accesses {
		g.accesses[a.TxID] = a
	}
	g.conflicts = analysis.Detect(g.txs, accesses)
	for _, c := range g.conflicts {
		g.addEdge(c.Before, c.After)
	}
	for _, tx := range g.txs {
		for _, dep := range tx.DependsOn {
			if _, ok := g.rank[dep]; !ok {
				g.warn(cfg.logger, "ignoring dependency on unknown transaction", "tx", tx.ID, "after", dep)
				continue
			}
			g.addEdge(dep, tx.ID)
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		g.cycle = cycle
		g.degraded = true
		g.warn(cfg.logger, "dependency cycle detected, degrading to serial chain", "cycle", cycle)
		g.linearize()
	}

	g.computeLevels()
	return g
}

// Linear returns the fully ordered chain over txs in precedence order.
// Conflicts are still analyzed and reported.
func Linear(txs []*ir.Transaction) *Graph {
	g := newGraph(txs)
	accesses := analysis.Analyze(g.txs)
	for _, a := range accesses {
		g.accesses[a.TxID] = a
	}
	g.conflicts = analysis.Detect(g.txs, accesses)
	g.linearize()
	g.computeLevels()
	return g
}

func newGraph(txs []*ir.Transaction) *Graph {
	ordered := append([]*ir.Transaction(nil), txs...)
	ir.SortByPrecedence(ordered)

	g := &Graph{
		txs:      ordered,
		rank:     make(map[string]int, len(ordered)),
		accesses: make(map[string]analysis.Access, len(ordered)),
		succ:     make(map[string][]string),
		pred:     make(map[string][]string),
		levelOf:  make(map[string]int, len(ordered)),
	}
	for i, tx := range ordered {
		g.rank[tx.ID] = i
	}
	return g
}

func (g *Graph) warn(logger *slog.Logger, msg string, args ...any) {
	logger.Warn(msg, args...)
	g.warnings = append(g.warnings, msg)
}

func (g *Graph) addEdge(from, to string) {
	if from == to || slices.Contains(g.succ[from], to) {
		return
	}
	g.succ[from] = g.insertByRank(g.succ[from], to)
	g.pred[to] = g.insertByRank(g.pred[to], from)
}

func (g *Graph) insertByRank(list []string, id string) []string {
	i, _ := slices.BinarySearchFunc(list, id, func(a, b string) int {
		return g.rank[a] - g.rank[b]
	})
	return slices.Insert(list, i, id)
}

// linearize replaces all edges with the precedence chain.
func (g *Graph) linearize() {
	g.succ = make(map[string][]string)
	g.pred = make(map[string][]string)
	for i := 1; i < len(g.txs); i++ {
		g.addEdge(g.txs[i-1].ID, g.txs[i].ID)
	}
}

// findCycle runs a depth-first search and returns the first cycle found as
// a path whose last element repeats the first, or nil.
func (g *Graph) findCycle() []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.txs))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		stack = append(stack, id)
		for _, next := range g.succ[id] {
			switch color[next] {
			case grey:
				start := slices.Index(stack, next)
				cycle = append(append([]string(nil), stack[start:]...), next)
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, tx := range g.txs {
		if color[tx.ID] == white && visit(tx.ID) {
			return cycle
		}
	}
	return nil
}

// computeLevels extracts zero in-degree nodes repeatedly (Kahn's algorithm).
// Each extraction is one level, ordered by precedence.
func (g *Graph) computeLevels() {
	indeg := make(map[string]int, len(g.txs))
	for _, tx := range g.txs {
		indeg[tx.ID] = len(g.pred[tx.ID])
	}

	var frontier []string
	for _, tx := range g.txs {
		if indeg[tx.ID] == 0 {
			frontier = append(frontier, tx.ID)
		}
	}

	for len(frontier) > 0 {
		level := frontier
		g.levels = append(g.levels, level)
		frontier = nil
		for _, id := range level {
			g.levelOf[id] = len(g.levels) - 1
			for _, next := range g.succ[id] {
				indeg[next]--
				if indeg[next] == 0 {
					frontier = append(frontier, next)
				}
			}
		}
		slices.SortFunc(frontier, func(a, b string) int {
			return g.rank[a] - g.rank[b]
		})
	}
}
