package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roach88/synchrony/internal/commit"
	"github.com/roach88/synchrony/internal/conservation"
	"github.com/roach88/synchrony/internal/executor"
	"github.com/roach88/synchrony/internal/graph"
	"github.com/roach88/synchrony/internal/ir"
	"github.com/roach88/synchrony/internal/prover"
)

// Engine processes transaction batches against a ledger.
//
// Batches are serialized: Process holds the engine lock from staging to
// commit, so every batch sees the ledger exactly as the previous batch left
// it. Within a batch, independent transactions run on a bounded worker pool
// created for that batch.
type Engine struct {
	mu      sync.Mutex
	manager *commit.Manager
	exec    *executor.Executor
	prover  *prover.Prover
	clock   *Clock
	ids     IDGenerator
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
	queue   *batchQueue

	atomic          bool
	workers         int
	timeout         time.Duration
	hook            executor.Hook
	oracle          prover.Oracle
	persister       commit.Persister
	maxTransactions int
}

// New creates an Engine over ledger. A nil ledger starts empty.
func New(ledger *commit.Ledger, opts ...Option) *Engine {
	if ledger == nil {
		ledger = commit.NewLedger(nil)
	}
	e := &Engine{
		clock:           NewClock(),
		ids:             UUIDv7Generator{},
		logger:          slog.Default(),
		now:             time.Now,
		queue:           newBatchQueue(),
		workers:         executor.DefaultWorkers(),
		timeout:         executor.DefaultTimeout,
		maxTransactions: DefaultMaxTransactions,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.exec = executor.New(
		executor.WithWorkers(e.workers),
		executor.WithTimeout(e.timeout),
		executor.WithHook(e.hook),
		executor.WithLogger(e.logger),
		executor.WithClock(e.now),
	)
	e.prover = prover.New(prover.WithOracle(e.oracle), prover.WithLogger(e.logger))
	e.manager = commit.NewManager(ledger,
		commit.WithPersister(e.persister),
		commit.WithLogger(e.logger),
		commit.WithClock(e.now),
	)
	return e
}

// Ledger returns the authoritative ledger.
func (e *Engine) Ledger() *commit.Ledger { return e.manager.Ledger() }

// Clock returns the batch sequence clock.
func (e *Engine) Clock() *Clock { return e.clock }

// Atomic reports whether every batch is all-or-nothing.
func (e *Engine) Atomic() bool { return e.atomic }

// Process runs one batch through analysis, execution, proof, validation
// and commit. It never returns an error and never panics: every failure is
// classified in the result, and on failure the ledger is unchanged.
func (e *Engine) Process(ctx context.Context, txs []*ir.Transaction, opts ...BatchOption) (res *BatchResult) {
	start := e.now()
	res = &BatchResult{
		BatchSeq:    e.clock.Next(),
		FinalStates: ir.StateMap{},
		Trace:       []ir.TraceEvent{},
		Statuses:    make(map[string]TxStatus, len(txs)),
	}
	if len(txs) == 0 {
		res.Success = true
		res.Version = e.manager.Ledger().Version()
		return res
	}
	res.BatchID = e.ids.Generate()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("batch panicked", "batch", res.BatchID, "panic", r)
			res.fail(&BatchError{Type: ErrInternal, Message: fmt.Sprint(r)})
		}
		res.Metrics.Elapsed = e.now().Sub(start)
		if res.Metrics.Elapsed > 0 {
			res.Metrics.ThroughputImprovement = float64(res.Metrics.SerialEstimate) / float64(res.Metrics.Elapsed)
		}
		e.metrics.record(res)
		e.logBatch(res)
	}()

	if be := e.checkBatch(txs); be != nil {
		res.fail(be)
		for _, tx := range txs {
			if tx != nil {
				res.Statuses[tx.ID] = TxStatus{State: StatusRolledBack, Reason: be.Message}
			}
		}
		return res
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b := &batch{
		engine:  e,
		txs:     append([]*ir.Transaction(nil), txs...),
		res:     res,
		machine: commit.NewMachine(),
		atomic:  e.atomic || applyBatchOptions(opts).atomic,
	}
	ir.SortByPrecedence(b.txs)
	b.run(ctx)
	res.Phases = b.machine.History()
	res.Version = e.manager.Ledger().Version()
	return res
}

// checkBatch rejects malformed batches before any state is touched.
func (e *Engine) checkBatch(txs []*ir.Transaction) *BatchError {
	if err := checkSize(len(txs), e.maxTransactions); err != nil {
		return newBatchError(ErrInvalidBatch, err, nil)
	}
	seen := make(map[string]bool, len(txs))
	for i, tx := range txs {
		if tx == nil {
			return invalidBatch("transaction %d is nil", i)
		}
		if err := tx.Validate(); err != nil {
			return newBatchError(ErrInvalidBatch, err, map[string]string{"tx": tx.ID})
		}
		if seen[tx.ID] {
			return invalidBatch("duplicate transaction id %q", tx.ID)
		}
		seen[tx.ID] = true
	}
	return nil
}

func (e *Engine) logBatch(res *BatchResult) {
	if res.Success {
		e.logger.Info("batch committed",
			"batch", res.BatchID,
			"seq", res.BatchSeq,
			"transactions", len(res.Statuses),
			"groups", res.Metrics.Groups,
			"workers", res.Metrics.WorkersSpawned,
			"fallback", res.Fallback,
			"elapsed", res.Metrics.Elapsed,
		)
		return
	}
	e.logger.Error("batch rolled back",
		"batch", res.BatchID,
		"seq", res.BatchSeq,
		"error_type", res.ErrorType,
		"error", res.ErrorMessage,
	)
}

// batch is the state of one Process call. Driven by one goroutine.
type batch struct {
	engine  *Engine
	txs     []*ir.Transaction // precedence order
	res     *BatchResult
	machine *commit.Machine
	staged  *commit.Staged
	graph   *graph.Graph
	exec    *executor.Result
	atomic  bool
}

func (b *batch) advance(p commit.Phase) {
	if err := b.machine.Advance(p); err != nil {
		panic(err)
	}
}

func (b *batch) run(ctx context.Context) {
	e := b.engine
	hash, err := ir.BatchHash(b.txs)
	if err != nil {
		b.abort(newBatchError(ErrInvalidBatch, err, nil))
		return
	}

	b.staged = e.manager.Stage(declaredAccounts(b.txs))

	if len(b.txs) == 1 {
		b.graph = graph.Linear(b.txs)
	} else {
		b.graph = graph.Build(b.txs, graph.WithLogger(e.logger))
	}
	b.res.Levels = b.graph.Levels()
	b.res.Conflicts = b.graph.Conflicts()
	b.res.Metrics.Groups = len(b.res.Levels)
	b.res.Warnings = append(b.res.Warnings, b.graph.Warnings()...)
	if b.graph.Degraded() {
		b.res.warn(&BatchError{
			Type:    ErrCycleDetected,
			Message: "dependency cycle, scheduling serially",
			Details: map[string]string{"cycle": strings.Join(b.graph.Cycle(), " -> ")},
		})
	}

	b.advance(commit.Executing)
	if len(b.txs) == 1 {
		err = b.execute(ctx, e.exec.ExecuteDirect)
	} else {
		err = b.execute(ctx, e.exec.Execute)
	}
	if err != nil {
		b.abort(executionError(err, nil))
		return
	}
	if be := b.atomicFault(); be != nil {
		b.abort(be)
		return
	}

	if len(b.txs) > 1 {
		if !b.prove(ctx) {
			return
		}
	}

	b.advance(commit.Validating)
	if be := b.validate(); be != nil {
		b.abort(be)
		return
	}

	b.advance(commit.Committing)
	b.staged.Hold(b.exec.States)
	rec := &commit.Record{
		BatchID:      b.res.BatchID,
		BatchSeq:     b.res.BatchSeq,
		BatchHash:    hash,
		Atomic:       b.atomic,
		Transactions: b.txs,
		Committed:    b.exec.Committed,
		RolledBack:   make(map[string]string, len(b.exec.Faults)),
		Trace:        b.res.Trace,
	}
	for id, f := range b.exec.Faults {
		rec.RolledBack[id] = f.Reason
	}
	if err := e.manager.Commit(ctx, b.staged, rec); err != nil {
		b.abort(newBatchError(ErrCommitFailed, err, nil))
		return
	}
	b.advance(commit.Done)

	b.res.Success = true
	b.res.FinalStates = b.exec.States.Clone()
	for _, tx := range b.txs {
		if f, ok := b.exec.Faults[tx.ID]; ok {
			b.res.Statuses[tx.ID] = TxStatus{State: StatusRolledBack, Reason: f.Reason}
		} else {
			b.res.Statuses[tx.ID] = TxStatus{State: StatusCommitted}
		}
	}
}

// execute runs one executor pass and folds its result into the batch.
func (b *batch) execute(ctx context.Context, run func(context.Context, *graph.Graph, ir.StateMap) (*executor.Result, error)) error {
	r, err := run(ctx, b.graph, b.staged.Pre)
	if r != nil {
		b.res.Metrics.WorkersSpawned += r.WorkersSpawned
	}
	if err != nil {
		return err
	}
	b.exec = r
	b.res.Trace = r.Trace.Events()
	b.res.Metrics.SerialEstimate = 0
	for _, d := range r.Durations {
		b.res.Metrics.SerialEstimate += d
	}
	return nil
}

// prove checks the parallel trace and falls back to one serial
// re-execution when the proof fails. Returns false if the batch aborted.
func (b *batch) prove(ctx context.Context) bool {
	e := b.engine
	b.advance(commit.Proving)
	proof, err := e.prover.Prove(ctx, b.exec.Trace, b.graph)
	if err == nil {
		b.res.Proof = proof
		return true
	}

	proofErr := newBatchError(ErrProofFailed, err, map[string]string{"proof": err.Error()})
	e.logger.Warn("falling back to serial execution", "batch", b.res.BatchID, "error", err)
	b.res.warn(proofErr)
	b.res.Fallback = true

	b.advance(commit.SerialFallback)
	b.advance(commit.Executing)
	if err := b.execute(ctx, e.exec.ExecuteSerial); err != nil {
		b.abort(executionError(err, proofErr))
		return false
	}
	if be := b.atomicFault(); be != nil {
		b.abort(be)
		return false
	}
	return true
}

func (b *batch) atomicFault() *BatchError {
	if !b.atomic || len(b.exec.Faults) == 0 {
		return nil
	}
	ids := b.exec.RolledBack()
	f := b.exec.Faults[ids[0]]
	return &BatchError{
		Type:    ErrTransactionFault,
		Message: fmt.Sprintf("atomic batch aborted: %s", f.Error()),
		Details: map[string]string{"faulted": strings.Join(ids, ",")},
		Err:     f,
	}
}

// validate checks conservation over every referenced account.
func (b *batch) validate() *BatchError {
	moves := make([]conservation.Movement, 0, len(b.exec.Committed))
	for _, id := range b.exec.Committed {
		tx, _ := b.graph.Transaction(id)
		moves = append(moves, conservation.Movement{TxID: id, Flow: tx.Flow, Net: b.exec.NetEffect(id)})
	}
	pre := b.staged.Pre
	post := b.exec.States.Select(pre.IDs())
	_, err := conservation.Validate(pre, post, moves)
	if err == nil {
		return nil
	}
	details := map[string]string{}
	var v *conservation.Violation
	if errors.As(err, &v) {
		details["delta"] = v.Delta().String()
		details["pre_total"] = v.PreTotal.String()
		details["post_total"] = v.PostTotal.String()
		details["offenders"] = strings.Join(v.Offenders, ",")
	}
	return newBatchError(ErrConservation, err, details)
}

// abort rolls the batch back. The ledger is left as it was.
func (b *batch) abort(be *BatchError) {
	if b.machine.Current() != commit.RollingBack {
		b.advance(commit.RollingBack)
	}
	if b.staged != nil {
		b.engine.manager.Rollback(b.staged)
		b.res.FinalStates = b.staged.Pre.Clone()
	}
	b.advance(commit.Done)

	b.res.fail(be)
	b.res.Success = false
	for _, tx := range b.txs {
		reason := "batch rolled back"
		if b.exec != nil {
			if f, ok := b.exec.Faults[tx.ID]; ok {
				reason = f.Reason
			}
		}
		b.res.Statuses[tx.ID] = TxStatus{State: StatusRolledBack, Reason: reason}
	}
}

// executionError classifies an executor failure. After a failed proof the
// serial attempt was the last chance, so the proof failure is reported.
func executionError(err error, proofErr *BatchError) *BatchError {
	if proofErr != nil {
		return &BatchError{
			Type:    ErrProofFailed,
			Message: "serial re-execution failed: " + err.Error(),
			Details: map[string]string{"proof": proofErr.Message, "fallback": err.Error()},
			Err:     err,
		}
	}
	if executor.IsTimeout(err) {
		return newBatchError(ErrTimeout, err, nil)
	}
	return newBatchError(ErrCancelled, err, nil)
}

// declaredAccounts returns every account the batch references at the
// value its first declaration, in precedence order, gives it.
func declaredAccounts(txs []*ir.Transaction) map[string]int64 {
	declared := make(map[string]int64)
	for _, tx := range txs {
		for _, id := range tx.AccountIDs() {
			if _, ok := declared[id]; !ok {
				declared[id] = tx.Accounts[id]
			}
		}
	}
	return declared
}

func sortedStrings(ids []string) []string {
	sort.Strings(ids)
	return ids
}
