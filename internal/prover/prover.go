package prover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/synchrony/internal/graph"
	"github.com/roach88/synchrony/internal/ir"
)

// ErrTraceOpen is returned by Prove for a trace that has not been sealed.
var ErrTraceOpen = errors.New("trace is not sealed")

// Proof records a successful linearizability check.
type Proof struct {
	Oracle      string   `json:"oracle"`
	SerialOrder []string `json:"serial_order"` // the witnessing serial order
	Accounts    []string `json:"accounts"`     // accounts compared
	Obligation  string   `json:"obligation"`
}

// Prover builds proof obligations and discharges them through an Oracle.
type Prover struct {
	oracle Oracle
	logger *slog.Logger
}

// Option configures a Prover.
type Option func(*Prover)

// WithOracle sets the oracle. Nil is ignored.
func WithOracle(o Oracle) Option {
	return func(p *Prover) {
		if o != nil {
			p.oracle = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Prover) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Prover backed by LinearOracle unless configured otherwise.
func New(opts ...Option) *Prover {
	p := &Prover{oracle: LinearOracle{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Oracle returns the configured oracle.
func (p *Prover) Oracle() Oracle { return p.oracle }

// Prove checks that the committed transactions in trace, executed in the
// levels the trace records, produce the same final balances as executing
// them serially in an order consistent with g's edges.
//
// Returns a *Counterexample error when equivalence cannot be established,
// and ErrTraceOpen when the trace may still grow. Other errors come from the
// oracle or a cancelled context.
func (p *Prover) Prove(ctx context.Context, trace *ir.Trace, g *graph.Graph) (*Proof, error) {
	if !trace.Sealed() {
		return nil, ErrTraceOpen
	}
	events := trace.Events()
	if err := checkOrdering(events, g); err != nil {
		return nil, err
	}

	ob, err := BuildObligation(events, g)
	if err != nil {
		return nil, err
	}

	verdict, err := p.oracle.Check(ctx, ob.Formula)
	if err != nil {
		return nil, fmt.Errorf("oracle %s: %w", p.oracle.Name(), err)
	}
	if !verdict.Valid {
		ce := &Counterexample{Witness: verdict.Counterexample}
		if len(verdict.Counterexample) == 0 {
			ce.Reason = fmt.Sprintf("oracle %s found no proof and no witness", p.oracle.Name())
		} else {
			ce.Parallel = evalState(ob.parallel, ob.Accounts, verdict.Counterexample)
			ce.Serial = evalState(ob.serial, ob.Accounts, verdict.Counterexample)
		}
		p.logger.Warn("linearizability proof failed", "oracle", p.oracle.Name(), "error", ce.Error())
		return nil, ce
	}

	p.logger.Debug("linearizability proven", "oracle", p.oracle.Name(), "accounts", len(ob.Accounts))
	return &Proof{
		Oracle:      p.oracle.Name(),
		SerialOrder: ob.SerialOrder,
		Accounts:    ob.Accounts,
		Obligation:  ob.Formula.String(),
	}, nil
}

// Obligation is the formula that must be valid for the trace to be
// linearizable.
type Obligation struct {
	Formula     Formula
	SerialOrder []string
	Accounts    []string

	parallel symState
	serial   symState
}

// BuildObligation constructs the proof obligation for the committed
// transactions in events.
func BuildObligation(events []ir.TraceEvent, g *graph.Graph) (*Obligation, error) {
	committedLevel := make(map[string]int)
	for _, ev := range events {
		if ev.Kind != ir.EventCommit {
			continue
		}
		if _, ok := g.Transaction(ev.TxID); !ok {
			return nil, &Counterexample{Reason: fmt.Sprintf("trace commits unknown transaction %q", ev.TxID)}
		}
		committedLevel[ev.TxID] = ev.Level
	}

	// Parallel model: committed transactions grouped by recorded level,
	// merged in precedence order within a level.
	byLevel := make(map[int][]*ir.Transaction)
	var serialTxs []*ir.Transaction
	var order []string
	for _, id := range g.Nodes() {
		lvl, ok := committedLevel[id]
		if !ok {
			continue
		}
		tx, _ := g.Transaction(id)
		byLevel[lvl] = append(byLevel[lvl], tx)
	}
	levelIdx := make([]int, 0, len(byLevel))
	for lvl := range byLevel {
		levelIdx = append(levelIdx, lvl)
	}
	sort.Ints(levelIdx)
	levels := make([][]*ir.Transaction, 0, len(levelIdx))
	for _, lvl := range levelIdx {
		levels = append(levels, byLevel[lvl])
	}

	for _, id := range g.TopoOrder() {
		if _, ok := committedLevel[id]; ok {
			tx, _ := g.Transaction(id)
			serialTxs = append(serialTxs, tx)
			order = append(order, id)
		}
	}

	parallel := runLevels(levels)
	serial, pre := runSerial(serialTxs)
	accounts := sortedAccounts(parallel, serial)

	var premise []Formula
	for _, v := range preVars(parallel, serial, pre) {
		premise = append(premise, Cmp{Left: Var(v), Op: ir.CmpGE, Right: Const(0)})
	}
	premise = append(premise, pre...)

	conclusion := make([]Formula, 0, len(accounts))
	for _, acct := range accounts {
		conclusion = append(conclusion, Cmp{Left: parallel.get(acct), Op: ir.CmpEQ, Right: serial.get(acct)})
	}

	return &Obligation{
		Formula:     Implies{If: And{Args: premise}, Then: And{Args: conclusion}},
		SerialOrder: order,
		Accounts:    accounts,
		parallel:    parallel,
		serial:      serial,
	}, nil
}

func preVars(parallel, serial symState, pre []Formula) []string {
	seen := make(map[string]bool)
	for _, s := range []symState{parallel, serial} {
		for _, t := range s {
			for _, v := range t.Vars() {
				seen[v] = true
			}
		}
	}
	for _, v := range Vars(And{Args: pre}) {
		seen[v] = true
	}
	return SortedVars(seen)
}

// checkOrdering verifies the trace respects the graph: every COMMIT follows
// its START, and for each edge a -> b with both committed, COMMIT(a)
// precedes START(b).
func checkOrdering(events []ir.TraceEvent, g *graph.Graph) error {
	start := make(map[string]int64)
	commit := make(map[string]int64)
	for _, ev := range events {
		switch ev.Kind {
		case ir.EventStart:
			if _, ok := start[ev.TxID]; !ok {
				start[ev.TxID] = ev.Seq
			}
		case ir.EventCommit:
			s, ok := start[ev.TxID]
			if !ok || s > ev.Seq {
				return &Counterexample{Reason: fmt.Sprintf("transaction %s committed without starting", ev.TxID)}
			}
			commit[ev.TxID] = ev.Seq
		}
	}
	for _, e := range g.Edges() {
		c, okA := commit[e.From]
		_, okB := commit[e.To]
		if !okA || !okB {
			continue
		}
		if c > start[e.To] {
			return &Counterexample{Reason: fmt.Sprintf("%s started before its predecessor %s committed", e.To, e.From)}
		}
	}
	return nil
}

func evalState(s symState, accounts []string, a Assignment) map[string]int64 {
	out := make(map[string]int64, len(accounts))
	for _, acct := range accounts {
		out[acct] = s.get(acct).Eval(a)
	}
	return out
}
