package prover

import (
	"fmt"
	"sort"
	"strings"
)

// Term is a linear integer expression: Const + sum(Coef[v] * v).
type Term struct {
	Const int64
	Coef  map[string]int64
}

// Var returns the term for variable name.
func Var(name string) Term {
	return Term{Coef: map[string]int64{name: 1}}
}

// Const returns a constant term.
func Const(n int64) Term {
	return Term{Const: n}
}

// Plus returns t + n.
func (t Term) Plus(n int64) Term {
	out := t.clone()
	out.Const += n
	return out
}

// Sub returns t - u.
func (t Term) Sub(u Term) Term {
	out := t.clone()
	out.Const -= u.Const
	for v, c := range u.Coef {
		out.Coef[v] -= c
		if out.Coef[v] == 0 {
			delete(out.Coef, v)
		}
	}
	return out
}

// IsZero reports whether t is identically zero.
func (t Term) IsZero() bool {
	return t.Const == 0 && len(t.Coef) == 0
}

// Equal reports whether t and u are the same linear expression.
func (t Term) Equal(u Term) bool {
	return t.Sub(u).IsZero()
}

// Vars returns the variables with non-zero coefficients, sorted.
func (t Term) Vars() []string {
	vars := make([]string, 0, len(t.Coef))
	for v, c := range t.Coef {
		if c != 0 {
			vars = append(vars, v)
		}
	}
	sort.Strings(vars)
	return vars
}

// Eval evaluates t under a. Unassigned variables are zero.
func (t Term) Eval(a Assignment) int64 {
	sum := t.Const
	for v, c := range t.Coef {
		sum += c * a[v]
	}
	return sum
}

func (t Term) clone() Term {
	out := Term{Const: t.Const, Coef: make(map[string]int64, len(t.Coef))}
	for v, c := range t.Coef {
		if c != 0 {
			out.Coef[v] = c
		}
	}
	return out
}

func (t Term) String() string {
	var parts []string
	for _, v := range t.Vars() {
		switch c := t.Coef[v]; c {
		case 1:
			parts = append(parts, v)
		case -1:
			parts = append(parts, "-"+v)
		default:
			parts = append(parts, fmt.Sprintf("%d*%s", c, v))
		}
	}
	if t.Const != 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%d", t.Const))
	}
	return strings.ReplaceAll(strings.Join(parts, " + "), "+ -", "- ")
}

// Assignment maps variables to concrete values.
type Assignment map[string]int64

// Scale returns k * t.
func (t Term) Scale(k int64) Term {
	if k == 0 {
		return Term{}
	}
	out := Term{Const: t.Const * k, Coef: make(map[string]int64, len(t.Coef))}
	for v, c := range t.Coef {
		out.Coef[v] = c * k
	}
	return out
}

// Subst replaces variable v with u.
func (t Term) Subst(v string, u Term) Term {
	c, ok := t.Coef[v]
	if !ok {
		return t
	}
	out := t.clone()
	delete(out.Coef, v)
	return out.Sub(u.Scale(-c))
}
