package engine

import (
	"log/slog"
	"time"

	"github.com/roach88/synchrony/internal/commit"
	"github.com/roach88/synchrony/internal/executor"
	"github.com/roach88/synchrony/internal/prover"
)

// Option configures an Engine.
type Option func(*Engine)

// WithAtomic makes every batch all-or-nothing: one faulted transaction
// rolls back the whole batch.
func WithAtomic(atomic bool) Option {
	return func(e *Engine) { e.atomic = atomic }
}

// BatchOption configures a single Process or Submit call.
type BatchOption func(*batchOptions)

type batchOptions struct {
	atomic bool
}

// Atomic declares the batch all-or-nothing. An engine built WithAtomic
// treats every batch as atomic regardless.
func Atomic(atomic bool) BatchOption {
	return func(o *batchOptions) { o.atomic = atomic }
}

func applyBatchOptions(opts []BatchOption) batchOptions {
	var o batchOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithWorkers sets the per-batch worker pool size. Values below 1 are
// ignored.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.workers = n
		}
	}
}

// WithTimeout sets the execution timeout. Values <= 0 are ignored.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithHook runs h before each transaction's operations.
func WithHook(h executor.Hook) Option {
	return func(e *Engine) { e.hook = h }
}

// WithOracle sets the linearizability oracle.
func WithOracle(o prover.Oracle) Option {
	return func(e *Engine) { e.oracle = o }
}

// WithPersister hands every committed batch to p before the ledger swaps.
func WithPersister(p commit.Persister) Option {
	return func(e *Engine) { e.persister = p }
}

// WithIDGenerator sets the batch id source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		if g != nil {
			e.ids = g
		}
	}
}

// WithClock sets the logical clock that numbers batches.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithTimeSource sets the wall clock used for timestamps and metrics.
func WithTimeSource(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMetrics records batch metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithMaxTransactions sets the batch size limit. Zero disables it.
func WithMaxTransactions(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxTransactions = n
		}
	}
}

// WithLogger sets the logger for the engine and every component it drives.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
