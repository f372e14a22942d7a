package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/synchrony/internal/analysis"
	"github.com/roach88/synchrony/internal/graph"
)

// GraphOptions holds flags for the graph command.
type GraphOptions struct {
	*RootOptions
	DOT bool
}

// GraphResult describes the schedule of a batch.
type GraphResult struct {
	Batch     string              `json:"batch,omitempty"`
	Levels    [][]string          `json:"levels"`
	Conflicts []analysis.Conflict `json:"conflicts"`
	Edges     []graph.Edge        `json:"edges"` // transitive reduction
	Degraded  bool                `json:"degraded"`
	Cycle     []string            `json:"cycle,omitempty"`
	Warnings  []string            `json:"warnings,omitempty"`
	DOT       string              `json:"dot,omitempty"`
}

// Text renders the result for humans.
func (r GraphResult) Text() string {
	var sb strings.Builder
	for i, level := range r.Levels {
		fmt.Fprintf(&sb, "level %d: %s\n", i, strings.Join(level, ", "))
	}
	if len(r.Conflicts) > 0 {
		sb.WriteString("conflicts:\n")
		for _, c := range r.Conflicts {
			kinds := make([]string, len(c.Kinds))
			for i, k := range c.Kinds {
				kinds[i] = string(k)
			}
			fmt.Fprintf(&sb, "  %s -> %s %s on %s\n", c.Before, c.After, strings.Join(kinds, "/"), strings.Join(c.Accounts, ","))
		}
	}
	if len(r.Edges) > 0 {
		sb.WriteString("edges:\n")
		for _, e := range r.Edges {
			fmt.Fprintf(&sb, "  %s -> %s\n", e.From, e.To)
		}
	}
	if r.Degraded {
		fmt.Fprintf(&sb, "degraded to serial order (cycle: %s)\n", strings.Join(r.Cycle, " -> "))
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&sb, "warning: %s\n", w)
	}
	return sb.String()
}

// NewGraphCommand creates the graph command.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GraphOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "graph <batch.cue>",
		Short: "Show the parallel schedule of a batch",
		Long: `Analyze a batch without running it and print its levels, the
conflicting transaction pairs, and the precedence edges after transitive
reduction.

With --dot the graph is written in Graphviz DOT language instead.

Examples:
  synchrony graph payroll.cue
  synchrony graph --dot payroll.cue | dot -Tsvg > payroll.svg`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DOT, "dot", false, "output Graphviz DOT")

	return cmd
}

func runGraph(opts *GraphOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	b, err := LoadBatch(path)
	if err != nil {
		return loadFailure(formatter, err)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	g := graph.Build(b.Transactions, graph.WithLogger(opts.logger(cfg, cmd.ErrOrStderr())))

	edges, err := g.Reduce()
	if err != nil {
		_ = formatter.Error(ErrCodeGraph, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to reduce graph", err)
	}

	result := GraphResult{
		Batch:     b.Name,
		Levels:    g.Levels(),
		Conflicts: g.Conflicts(),
		Edges:     edges,
		Degraded:  g.Degraded(),
		Cycle:     g.Cycle(),
		Warnings:  g.Warnings(),
	}
	if result.Conflicts == nil {
		result.Conflicts = []analysis.Conflict{}
	}
	if result.Edges == nil {
		result.Edges = []graph.Edge{}
	}

	if opts.DOT {
		name := b.Name
		if name == "" {
			name = "batch"
		}
		result.DOT = g.DOT(name, edges)
		if formatter.Format != "json" {
			_, err := io.WriteString(formatter.Writer, result.DOT)
			return err
		}
	}
	return formatter.Success(result)
}
