package prover

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/synchrony/internal/ir"
)

// SMTLib renders a validity query for f: f is valid iff the script is unsat.
func SMTLib(f Formula) string {
	var sb strings.Builder
	sb.WriteString("(set-logic QF_LIA)\n")
	sb.WriteString("(set-option :produce-models true)\n")
	for _, v := range Vars(f) {
		fmt.Fprintf(&sb, "(declare-const %s Int)\n", smtSymbol(v))
	}
	fmt.Fprintf(&sb, "(assert (not %s))\n", smtFormula(f))
	sb.WriteString("(check-sat)\n(get-model)\n")
	return sb.String()
}

// smtSymbol quotes a variable. Account ids never contain | or \, so the
// quoted form is always well formed.
func smtSymbol(v string) string {
	return "|" + v + "|"
}

func smtInt(n int64) string {
	if n < 0 {
		return fmt.Sprintf("(- %d)", -n)
	}
	return strconv.FormatInt(n, 10)
}

func smtTerm(t Term) string {
	var parts []string
	for _, v := range t.Vars() {
		c := t.Coef[v]
		if c == 1 {
			parts = append(parts, smtSymbol(v))
			continue
		}
		parts = append(parts, fmt.Sprintf("(* %s %s)", smtInt(c), smtSymbol(v)))
	}
	if t.Const != 0 || len(parts) == 0 {
		parts = append(parts, smtInt(t.Const))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(+ " + strings.Join(parts, " ") + ")"
}

func smtFormula(f Formula) string {
	switch n := f.(type) {
	case Bool:
		return n.String()
	case Cmp:
		l, r := smtTerm(n.Left), smtTerm(n.Right)
		switch n.Op {
		case ir.CmpEQ:
			return fmt.Sprintf("(= %s %s)", l, r)
		case ir.CmpNE:
			return fmt.Sprintf("(not (= %s %s))", l, r)
		default:
			return fmt.Sprintf("(%s %s %s)", n.Op, l, r)
		}
	case And:
		if len(n.Args) == 0 {
			return "true"
		}
		parts := make([]string, len(n.Args))
		for i, arg := range n.Args {
			parts[i] = smtFormula(arg)
		}
		return "(and " + strings.Join(parts, " ") + ")"
	case Not:
		if c, ok := n.Arg.(Cmp); ok {
			c.Op = c.Op.Negate()
			return smtFormula(c)
		}
		return "(not " + smtFormula(n.Arg) + ")"
	case Implies:
		return fmt.Sprintf("(=> %s %s)", smtFormula(n.If), smtFormula(n.Then))
	default:
		panic(fmt.Sprintf("unsupported formula node: %T", f))
	}
}

// ExecOracle runs an external SMT-LIB 2 solver, feeding the script on stdin.
type ExecOracle struct {
	Path string   // solver binary, e.g. "z3"
	Args []string // e.g. ["-in", "-smt2"]
}

// Name implements Oracle.
func (o ExecOracle) Name() string { return "smtlib:" + o.Path }

// Check implements Oracle. "unsat" means valid; "sat" yields the model as
// counterexample; "unknown" is invalid without a witness.
func (o ExecOracle) Check(ctx context.Context, f Formula) (Verdict, error) {
	cmd := exec.CommandContext(ctx, o.Path, o.Args...)
	cmd.Stdin = strings.NewReader(SMTLib(f))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// z3 exits non-zero when get-model follows unsat; the answer is on stdout.
	runErr := cmd.Run()
	if ctx.Err() != nil {
		return Verdict{}, ctx.Err()
	}

	answer, model := splitAnswer(stdout.String())
	switch answer {
	case "unsat":
		return Verdict{Valid: true}, nil
	case "sat":
		a, err := ParseModel(model)
		if err != nil {
			return Verdict{}, fmt.Errorf("solver model: %w", err)
		}
		return Verdict{Counterexample: a}, nil
	case "unknown":
		return Verdict{}, nil
	}
	if runErr != nil {
		return Verdict{}, fmt.Errorf("solver %s: %w: %s", o.Path, runErr, strings.TrimSpace(stderr.String()))
	}
	return Verdict{}, fmt.Errorf("solver %s: unexpected answer %q", o.Path, answer)
}

func splitAnswer(out string) (string, string) {
	line, rest, _ := strings.Cut(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(line), rest
}

var defineFun = regexp.MustCompile(`\(define-fun\s+(\|[^|]*\||[^\s()]+)\s+\(\)\s+Int\s+(\(\s*-\s*\d+\s*\)|-?\d+)\s*\)`)

// ParseModel extracts integer constants from an SMT-LIB model.
func ParseModel(model string) (Assignment, error) {
	a := make(Assignment)
	for _, m := range defineFun.FindAllStringSubmatch(model, -1) {
		name := strings.Trim(m[1], "|")
		raw := strings.NewReplacer("(", "", ")", "", " ", "").Replace(m[2])
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("value of %s: %w", name, err)
		}
		a[name] = n
	}
	return a, nil
}
