package prover

import (
	"sort"
	"strings"

	"github.com/roach88/synchrony/internal/ir"
)

// Formula is a boolean formula over linear terms.
//
// This is a sealed interface - only the node types in this file implement
// it, so oracles can translate formulas exhaustively.
type Formula interface {
	formulaNode()

	// Eval evaluates the formula under a concrete assignment.
	Eval(a Assignment) bool

	String() string
}

// Bool is a constant formula.
type Bool struct{ Value bool }

// Cmp compares two terms.
type Cmp struct {
	Left  Term
	Op    ir.Comparator
	Right Term
}

// And is the conjunction of its arguments. An empty And is true.
type And struct{ Args []Formula }

// Not negates its argument.
type Not struct{ Arg Formula }

// Implies is If => Then.
type Implies struct {
	If   Formula
	Then Formula
}

func (Bool) formulaNode()    {}
func (Cmp) formulaNode()     {}
func (And) formulaNode()     {}
func (Not) formulaNode()     {}
func (Implies) formulaNode() {}

func (f Bool) Eval(Assignment) bool { return f.Value }

func (f Cmp) Eval(a Assignment) bool {
	return f.Op.Compare(f.Left.Eval(a), f.Right.Eval(a))
}

func (f And) Eval(a Assignment) bool {
	for _, arg := range f.Args {
		if !arg.Eval(a) {
			return false
		}
	}
	return true
}

func (f Not) Eval(a Assignment) bool { return !f.Arg.Eval(a) }

func (f Implies) Eval(a Assignment) bool {
	return !f.If.Eval(a) || f.Then.Eval(a)
}

func (f Bool) String() string {
	if f.Value {
		return "true"
	}
	return "false"
}

func (f Cmp) String() string {
	return f.Left.String() + " " + string(f.Op) + " " + f.Right.String()
}

func (f And) String() string {
	if len(f.Args) == 0 {
		return "true"
	}
	parts := make([]string, len(f.Args))
	for i, arg := range f.Args {
		parts[i] = "(" + arg.String() + ")"
	}
	return strings.Join(parts, " and ")
}

func (f Not) String() string { return "not (" + f.Arg.String() + ")" }

func (f Implies) String() string {
	return "(" + f.If.String() + ") => (" + f.Then.String() + ")"
}

// Vars returns every variable in f, sorted.
func Vars(f Formula) []string {
	seen := make(map[string]bool)
	var walk func(Formula)
	walk = func(f Formula) {
		switch n := f.(type) {
		case Cmp:
			for _, v := range n.Left.Vars() {
				seen[v] = true
			}
			for _, v := range n.Right.Vars() {
				seen[v] = true
			}
		case And:
			for _, arg := range n.Args {
				walk(arg)
			}
		case Not:
			walk(n.Arg)
		case Implies:
			walk(n.If)
			walk(n.Then)
		}
	}
	walk(f)

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// constants collects the constants that appear in f, used to pick candidate
// witness values.
func constants(f Formula) []int64 {
	var out []int64
	var walk func(Formula)
	walk = func(f Formula) {
		switch n := f.(type) {
		case Cmp:
			out = append(out, n.Left.Const, n.Right.Const, n.Right.Const-n.Left.Const)
		case And:
			for _, arg := range n.Args {
				walk(arg)
			}
		case Not:
			walk(n.Arg)
		case Implies:
			walk(n.If)
			walk(n.Then)
		}
	}
	walk(f)
	return out
}
