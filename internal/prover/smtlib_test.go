package prover

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synchrony/internal/ir"
)

func TestSMTLibRendering(t *testing.T) {
	f := Implies{
		If: And{Args: []Formula{
			Cmp{Left: Var("alice"), Op: ir.CmpGE, Right: Const(0)},
			Cmp{Left: Var("alice").Plus(-100), Op: ir.CmpGE, Right: Const(0)},
		}},
		Then: Cmp{Left: Var("alice").Plus(-100), Op: ir.CmpEQ, Right: Var("alice").Scale(2)},
	}

	script := SMTLib(f)

	assert.Equal(t, `(set-logic QF_LIA)
(set-option :produce-models true)
(declare-const |alice| Int)
(assert (not (=> (and (>= |alice| 0) (>= (+ |alice| (- 100)) 0)) (= (+ |alice| (- 100)) (* 2 |alice|)))))
(check-sat)
(get-model)
`, script)
}

func TestSMTLibNotEqual(t *testing.T) {
	assert.Equal(t, "(not (= |x| 3))", smtFormula(Cmp{Left: Var("x"), Op: ir.CmpNE, Right: Const(3)}))
	assert.Equal(t, "true", smtFormula(And{}))
}

func TestSMTLibNegatedComparison(t *testing.T) {
	x := Var("x")
	assert.Equal(t, "(< |x| 3)", smtFormula(Not{Arg: Cmp{Left: x, Op: ir.CmpGE, Right: Const(3)}}))
	assert.Equal(t, "(<= |x| 3)", smtFormula(Not{Arg: Cmp{Left: x, Op: ir.CmpGT, Right: Const(3)}}))
	assert.Equal(t, "(not (= |x| 3))", smtFormula(Not{Arg: Cmp{Left: x, Op: ir.CmpEQ, Right: Const(3)}}))
	assert.Equal(t, "(= |x| 3)", smtFormula(Not{Arg: Cmp{Left: x, Op: ir.CmpNE, Right: Const(3)}}))
	assert.Equal(t, "(not (and (>= |x| 0)))", smtFormula(Not{Arg: And{Args: []Formula{Cmp{Left: x, Op: ir.CmpGE, Right: Const(0)}}}}))
}

func TestParseModel(t *testing.T) {
	model := `(
  (define-fun |alice| () Int
    5)
  (define-fun bob () Int (- 12))
)`
	a, err := ParseModel(model)
	require.NoError(t, err)
	assert.Equal(t, Assignment{"alice": 5, "bob": -12}, a)
}

func TestSplitAnswer(t *testing.T) {
	answer, rest := splitAnswer("\nsat\n(model)\n")
	assert.Equal(t, "sat", answer)
	assert.Equal(t, "(model)", rest)
}

func TestExecOracleWithZ3(t *testing.T) {
	path, err := exec.LookPath("z3")
	if err != nil {
		t.Skip("z3 not installed")
	}
	o := ExecOracle{Path: path, Args: []string{"-in", "-smt2"}}

	valid := Implies{
		If:   Cmp{Left: Var("x"), Op: ir.CmpGE, Right: Const(0)},
		Then: Cmp{Left: Var("x").Plus(1), Op: ir.CmpGT, Right: Var("x")},
	}
	v, err := o.Check(context.Background(), valid)
	require.NoError(t, err)
	assert.True(t, v.Valid)

	invalid := Cmp{Left: Var("x"), Op: ir.CmpEQ, Right: Var("y")}
	v, err = o.Check(context.Background(), invalid)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.False(t, invalid.Eval(v.Counterexample))
}

func TestExecOracleMissingBinary(t *testing.T) {
	o := ExecOracle{Path: "/nonexistent/solver"}
	_, err := o.Check(context.Background(), Bool{Value: true})
	require.Error(t, err)
	assert.Equal(t, "smtlib:/nonexistent/solver", o.Name())
}
