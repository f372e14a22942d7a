package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/roach88/synchrony/internal/graph"
	"github.com/roach88/synchrony/internal/ir"
)

// Executor runs batches against a working copy of account state.
// It holds configuration only and is safe for concurrent use.
type Executor struct {
	workers int
	timeout time.Duration
	hook    Hook
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an Executor. Defaults: DefaultWorkers() workers and a
// DefaultTimeout bound.
func New(opts ...Option) *Executor {
	e := &Executor{
		workers: DefaultWorkers(),
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Workers returns the configured pool size.
func (e *Executor) Workers() int { return e.workers }

// Timeout returns the configured execution bound.
func (e *Executor) Timeout() time.Duration { return e.timeout }

// Result is the outcome of one execution.
type Result struct {
	Trace  *ir.Trace   // sealed
	States ir.StateMap // working final states

	// Levels as executed; serial execution has one transaction per level.
	Levels [][]string

	Committed []string // in COMMIT event order
	Faults    map[string]Fault

	// Effects holds each committed transaction's net balance change per
	// written account.
	Effects   map[string]map[string]int64
	Durations map[string]time.Duration

	WorkersSpawned int
	Elapsed        time.Duration
}

// RolledBack returns the ids of faulted transactions in sorted order.
func (r *Result) RolledBack() []string {
	ids := make([]string, 0, len(r.Faults))
	for id := range r.Faults {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NetEffect returns the exact sum of a transaction's balance changes.
func (r *Result) NetEffect(txID string) *big.Int {
	sum := new(big.Int)
	for _, d := range r.Effects[txID] {
		sum.Add(sum, big.NewInt(d))
	}
	return sum
}

// Execute runs g level by level on the worker pool. initial is never
// mutated; accounts a transaction declares but initial lacks are seeded at
// their declared pre-batch value.
func (e *Executor) Execute(ctx context.Context, g *graph.Graph, initial ir.StateMap) (*Result, error) {
	return e.run(ctx, g, g.Levels(), e.workers, initial)
}

// ExecuteSerial runs g one transaction at a time in topological order on a
// single worker.
func (e *Executor) ExecuteSerial(ctx context.Context, g *graph.Graph, initial ir.StateMap) (*Result, error) {
	order := g.TopoOrder()
	levels := make([][]string, len(order))
	for i, id := range order {
		levels[i] = []string{id}
	}
	return e.run(ctx, g, levels, 1, initial)
}

func (e *Executor) run(ctx context.Context, g *graph.Graph, levels [][]string, poolSize int, initial ir.StateMap) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := e.now()
	trace := ir.NewTraceWithClock(e.now)
	ws := newWorkingSet(seedStates(g.Transactions(), initial))
	res := newResult(trace, levels)

	for lvl, ids := range levels {
		outcomes, spawned, err := e.runLevel(ctx, g, lvl, ids, poolSize, ws.view(), trace)
		res.WorkersSpawned += spawned
		if err != nil {
			trace.Seal()
			e.logger.Warn("execution aborted", "level", lvl, "error", err)
			return nil, err
		}
		ws.merge(outcomes)
		res.record(outcomes)
	}
	return e.finish(res, ws, start), nil
}

// ExecuteDirect runs g one transaction at a time on the calling goroutine.
// No worker is started; the timeout is observed between operations, so a
// hook that ignores ctx blocks the caller.
func (e *Executor) ExecuteDirect(ctx context.Context, g *graph.Graph, initial ir.StateMap) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := e.now()
	trace := ir.NewTraceWithClock(e.now)
	ws := newWorkingSet(seedStates(g.Transactions(), initial))
	order := g.TopoOrder()
	levels := make([][]string, len(order))
	for i, id := range order {
		levels[i] = []string{id}
	}
	res := newResult(trace, levels)

	for lvl, id := range order {
		tx, _ := g.Transaction(id)
		access, _ := g.Access(id)
		o := e.runTx(ctx, tx, access.WriteList(), 0, lvl, ws.view(), trace)
		if err := e.interrupted(ctx, lvl, []string{id}); err != nil {
			trace.Seal()
			e.logger.Warn("execution aborted", "level", lvl, "error", err)
			return nil, err
		}
		ws.merge([]outcome{o})
		res.record([]outcome{o})
	}
	return e.finish(res, ws, start), nil
}

func newResult(trace *ir.Trace, levels [][]string) *Result {
	return &Result{
		Trace:     trace,
		Levels:    levels,
		Faults:    make(map[string]Fault),
		Effects:   make(map[string]map[string]int64),
		Durations: make(map[string]time.Duration),
	}
}

func (r *Result) record(outcomes []outcome) {
	for _, o := range outcomes {
		r.Durations[o.txID] = o.duration
		if o.fault != nil {
			r.Faults[o.txID] = *o.fault
			continue
		}
		r.Effects[o.txID] = o.effects
	}
}

// finish seals the trace and derives the commit order and final states.
func (e *Executor) finish(res *Result, ws *workingSet, start time.Time) *Result {
	res.Trace.Seal()
	for _, ev := range res.Trace.Events() {
		if ev.Kind == ir.EventCommit {
			res.Committed = append(res.Committed, ev.TxID)
		}
	}
	res.States = ws.snapshot()
	res.Elapsed = e.now().Sub(start)
	return res
}

// interrupted classifies an expired or cancelled ctx for level lvl.
func (e *Executor) interrupted(ctx context.Context, lvl int, pending []string) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Timeout: e.timeout, Level: lvl, Pending: append([]string(nil), pending...)}
	}
	return fmt.Errorf("execution cancelled at level %d: %w", lvl, err)
}

// runLevel executes one level. Job i goes to worker i mod n, so a level of
// two or more transactions always spreads over two or more workers when the
// pool allows it.
func (e *Executor) runLevel(ctx context.Context, g *graph.Graph, lvl int, ids []string, poolSize int, view ir.StateMap, trace *ir.Trace) ([]outcome, int, error) {
	n := min(poolSize, len(ids))
	outcomes := make([]outcome, len(ids))
	done := make(chan struct{})

	var wg sync.WaitGroup
	for w := 0; w < n; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := worker; i < len(ids); i += n {
				if ctx.Err() != nil {
					return
				}
				tx, _ := g.Transaction(ids[i])
				access, _ := g.Access(ids[i])
				outcomes[i] = e.runTx(ctx, tx, access.WriteList(), worker, lvl, view, trace)
			}
		}(w)
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
	if err := e.interrupted(ctx, lvl, ids); err != nil {
		return nil, n, err
	}
	return outcomes, n, nil
}

// outcome is the private result of one transaction. Exactly one worker
// writes each outcome; the level wait publishes it.
type outcome struct {
	txID     string
	local    ir.StateMap // private copy; nil on fault
	effects  map[string]int64
	fault    *Fault
	duration time.Duration
}

func (e *Executor) runTx(ctx context.Context, tx *ir.Transaction, writes []string, worker, lvl int, view ir.StateMap, trace *ir.Trace) outcome {
	started := e.now()
	out := outcome{txID: tx.ID}
	if _, err := trace.Append(ir.EventStart, tx.ID, worker, lvl, ""); err != nil {
		return out
	}

	rollback := func(f Fault) outcome {
		out.fault = &f
		out.duration = e.now().Sub(started)
		e.logger.Debug("transaction rolled back", "tx", tx.ID, "worker", worker, "level", lvl, "reason", f.Error())
		_, _ = trace.Append(ir.EventRollback, tx.ID, worker, lvl, f.Error())
		return out
	}

	if e.hook != nil {
		if err := e.hook(ctx, tx); err != nil {
			if ctx.Err() != nil {
				return out
			}
			return rollback(Fault{TxID: tx.ID, OpIdx: -1, Reason: "hook: " + err.Error()})
		}
	}

	local := view.Select(writes)
	balance := func(acct string) int64 {
		if st, ok := local[acct]; ok {
			return st.Balance
		}
		return view[acct].Balance
	}

	mutated := make(map[string]bool)
	for i, op := range tx.Ops {
		if ctx.Err() != nil {
			return out
		}
		next, err := ir.Apply(op, balance(op.Account()))
		if err != nil {
			return rollback(Fault{TxID: tx.ID, OpIdx: i, Reason: err.Error()})
		}
		if op.Mutates() {
			st := local[op.Account()]
			st.Balance = next
			local[op.Account()] = st
			mutated[op.Account()] = true
		}
	}
	for _, c := range tx.Postconditions {
		if got := balance(c.Target); !c.Holds(got) {
			return rollback(Fault{TxID: tx.ID, OpIdx: -1, Reason: fmt.Sprintf("postcondition %s failed: balance is %d", c, got)})
		}
	}

	out.effects = make(map[string]int64, len(mutated))
	for acct := range mutated {
		st := local[acct]
		out.effects[acct] = st.Balance - view[acct].Balance
		st.Nonce++
		local[acct] = st
	}
	out.local = local
	out.duration = e.now().Sub(started)

	if _, err := trace.Append(ir.EventCommit, tx.ID, worker, lvl, ""); err != nil {
		// Sealed by a timeout while this transaction finished.
		return outcome{txID: tx.ID}
	}
	e.logger.Debug("transaction committed", "tx", tx.ID, "worker", worker, "level", lvl)
	return out
}

// seedStates clones initial and adopts undeclared accounts at the value
// the transactions declare. The first declaration in precedence order wins.
func seedStates(txs []*ir.Transaction, initial ir.StateMap) ir.StateMap {
	states := initial.Clone()
	for _, tx := range txs {
		for _, acct := range tx.AccountIDs() {
			if _, ok := states[acct]; !ok {
				states[acct] = ir.AccountState{Balance: tx.Accounts[acct]}
			}
		}
	}
	return states
}
