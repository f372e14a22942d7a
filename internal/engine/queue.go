package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/synchrony/internal/ir"
)

// ErrQueueClosed is returned by Submit after Stop or after Run returned.
var ErrQueueClosed = errors.New("engine: batch queue closed")

// job is one submitted batch and the channel its result is delivered on.
type job struct {
	ctx    context.Context
	txs    []*ir.Transaction
	opts   []BatchOption
	result chan *BatchResult
}

// batchQueue is a thread-safe FIFO queue of submitted batches.
//
// Submitters may be any goroutine; only Run dequeues. The signal channel
// enables context-aware waiting in the Run loop.
type batchQueue struct {
	mu     sync.Mutex
	jobs   []job
	closed bool
	signal chan struct{} // buffered, size 1
}

func newBatchQueue() *batchQueue {
	return &batchQueue{
		jobs:   make([]job, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a job to the back of the queue.
// Returns false if the queue is closed.
func (q *batchQueue) Enqueue(j job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.jobs = append(q.jobs, j)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front job without blocking.
func (q *batchQueue) TryDequeue() (job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return job{}, false
	}
	j := q.jobs[0]

	// Release the slot so the transactions can be collected.
	q.jobs[0] = job{}
	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}
	return j, true
}

// Wait returns a channel that signals when jobs may be available. It is
// closed by Close.
func (q *batchQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *batchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close stops further enqueues and wakes the waiter.
func (q *batchQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Submit queues txs for the Run loop and returns the channel its result
// will be delivered on. The channel is buffered; Run never blocks on it.
func (e *Engine) Submit(ctx context.Context, txs []*ir.Transaction, opts ...BatchOption) (<-chan *BatchResult, error) {
	j := job{ctx: ctx, txs: txs, opts: opts, result: make(chan *BatchResult, 1)}
	if !e.queue.Enqueue(j) {
		return nil, ErrQueueClosed
	}
	return j.result, nil
}

// Run processes submitted batches one at a time in FIFO order until ctx
// is cancelled or Stop is called.
//
// After Stop, batches already queued are still processed before Run
// returns nil. On cancellation, queued batches are answered with a
// BATCH_CANCELLED result and Run returns ctx.Err().
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started", "workers", e.exec.Workers(), "timeout", e.exec.Timeout(), "atomic", e.atomic)
	for {
		if ctx.Err() != nil {
			e.queue.Close()
			e.drain(ctx.Err())
			e.logger.Info("engine stopping: context cancelled")
			return ctx.Err()
		}

		if j, ok := e.queue.TryDequeue(); ok {
			jctx := j.ctx
			if jctx == nil {
				jctx = ctx
			}
			j.result <- e.Process(jctx, j.txs, j.opts...)
			continue
		}

		select {
		case <-ctx.Done():
			// Handled at the top of the loop.
		case <-e.queue.Wait():
			// The signal channel is closed by Stop; exit once drained.
			if e.stopped() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns after the queued batches finish.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) stopped() bool {
	e.queue.mu.Lock()
	defer e.queue.mu.Unlock()
	return e.queue.closed && len(e.queue.jobs) == 0
}

// drain answers every queued batch with a cancellation result.
func (e *Engine) drain(cause error) {
	for {
		j, ok := e.queue.TryDequeue()
		if !ok {
			return
		}
		res := &BatchResult{
			BatchSeq:    e.clock.Next(),
			FinalStates: ir.StateMap{},
			Trace:       []ir.TraceEvent{},
			Statuses:    make(map[string]TxStatus, len(j.txs)),
		}
		res.fail(newBatchError(ErrCancelled, cause, nil))
		for _, tx := range j.txs {
			if tx != nil {
				res.Statuses[tx.ID] = TxStatus{State: StatusRolledBack, Reason: "not processed"}
			}
		}
		j.result <- res
	}
}
