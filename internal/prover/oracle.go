package prover

import (
	"context"
	"math/rand"
	"slices"

	"github.com/roach88/synchrony/internal/ir"
)

// Oracle decides validity of a formula. Implementations may block.
type Oracle interface {
	// Check reports whether f holds for every assignment. When it does not,
	// Counterexample carries a falsifying assignment if one was found.
	Check(ctx context.Context, f Formula) (Verdict, error)

	// Name identifies the oracle in logs and proofs.
	Name() string
}

// Verdict is an oracle answer.
type Verdict struct {
	Valid          bool
	Counterexample Assignment // nil when valid or when no witness was found
}

// LinearOracle decides obligations of the form P => (l1 == r1 and ...)
// in-process. Conclusions that are identities of linear terms, after
// substituting variables pinned by equalities in P, are valid. Otherwise it
// searches candidate points for a falsifying assignment; if none is found the
// verdict is invalid without a witness.
type LinearOracle struct {
	// Samples bounds the randomized witness search. Zero means 512.
	Samples int
	// Seed makes the search reproducible.
	Seed int64
}

// Name implements Oracle.
func (LinearOracle) Name() string { return "builtin" }

// Check implements Oracle.
func (o LinearOracle) Check(ctx context.Context, f Formula) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}

	premise, conclusion := Formula(Bool{Value: true}), f
	if imp, ok := f.(Implies); ok {
		premise, conclusion = imp.If, imp.Then
	}
	if identity(substitutePins(conclusion, pins(premise))) {
		return Verdict{Valid: true}, nil
	}

	if w := o.search(ctx, f); w != nil {
		return Verdict{Counterexample: w}, nil
	}
	return Verdict{}, ctx.Err()
}

// identity reports whether f is true for every assignment by structure alone.
func identity(f Formula) bool {
	switch n := f.(type) {
	case Bool:
		return n.Value
	case Cmp:
		if !n.Left.Equal(n.Right) {
			return false
		}
		return n.Op == ir.CmpEQ || n.Op == ir.CmpGE || n.Op == ir.CmpLE
	case And:
		for _, arg := range n.Args {
			if !identity(arg) {
				return false
			}
		}
		return true
	case Implies:
		return identity(n.Then)
	default:
		return false
	}
}

// pins extracts v == t facts from top-level equalities of the premise.
func pins(f Formula) map[string]Term {
	out := make(map[string]Term)
	var walk func(Formula)
	walk = func(f Formula) {
		switch n := f.(type) {
		case And:
			for _, arg := range n.Args {
				walk(arg)
			}
		case Cmp:
			if n.Op != ir.CmpEQ {
				return
			}
			diff := n.Left.Sub(n.Right)
			for _, v := range diff.Vars() {
				c := diff.Coef[v]
				if c != 1 && c != -1 {
					continue
				}
				if _, done := out[v]; done {
					continue
				}
				rest := diff.clone()
				delete(rest.Coef, v)
				// c*v + rest == 0  =>  v == -rest/c
				out[v] = rest.Scale(-c)
				return
			}
		}
	}
	walk(f)
	return out
}

func substitutePins(f Formula, p map[string]Term) Formula {
	if len(p) == 0 {
		return f
	}
	subst := func(t Term) Term {
		for _, v := range SortedVars(p) {
			t = t.Subst(v, p[v])
		}
		return t
	}
	switch n := f.(type) {
	case Cmp:
		return Cmp{Left: subst(n.Left), Op: n.Op, Right: subst(n.Right)}
	case And:
		args := make([]Formula, len(n.Args))
		for i, arg := range n.Args {
			args[i] = substitutePins(arg, p)
		}
		return And{Args: args}
	case Not:
		return Not{Arg: substitutePins(n.Arg, p)}
	case Implies:
		return Implies{If: substitutePins(n.If, p), Then: substitutePins(n.Then, p)}
	default:
		return f
	}
}

// SortedVars returns the keys of m in sorted order.
func SortedVars[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (o LinearOracle) search(ctx context.Context, f Formula) Assignment {
	vars := Vars(f)
	cands := candidates(f)

	try := func(a Assignment) bool { return !f.Eval(a) }

	for _, c := range cands {
		a := make(Assignment, len(vars))
		for _, v := range vars {
			a[v] = c
		}
		if try(a) {
			return a
		}
	}
	if len(vars) == 0 {
		return nil
	}

	samples := o.Samples
	if samples <= 0 {
		samples = 512
	}
	rng := rand.New(rand.NewSource(o.Seed))
	for i := 0; i < samples; i++ {
		if i%64 == 0 && ctx.Err() != nil {
			return nil
		}
		a := make(Assignment, len(vars))
		for _, v := range vars {
			a[v] = cands[rng.Intn(len(cands))]
		}
		if try(a) {
			return a
		}
	}
	return nil
}

// candidates returns non-negative witness values drawn from the formula's
// constants and their neighbors.
func candidates(f Formula) []int64 {
	seen := map[int64]bool{0: true, 1: true, 2: true, 100: true}
	for _, c := range constants(f) {
		for _, v := range []int64{c - 1, c, c + 1, -c, -c + 1} {
			if v >= 0 {
				seen[v] = true
			}
		}
	}
	out := make([]int64, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}
