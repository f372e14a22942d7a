package executor

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/roach88/synchrony/internal/ir"
)

// DefaultTimeout bounds one Execute call.
const DefaultTimeout = 30 * time.Second

// MaxDefaultWorkers caps the default pool size.
const MaxDefaultWorkers = 8

// Hook runs before a transaction's operations. Returning an error faults
// the transaction. Hooks should honor ctx; a hook that ignores it still
// cannot outlive the executor timeout, only its own goroutine.
type Hook func(ctx context.Context, tx *ir.Transaction) error

// Option configures an Executor.
type Option func(*Executor)

// DefaultWorkers returns min(available cores, 8).
func DefaultWorkers() int {
	return min(runtime.NumCPU(), MaxDefaultWorkers)
}

// WithWorkers sets the per-level pool size. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(e *Executor) {
		if n >= 1 {
			e.workers = n
		}
	}
}

// WithTimeout bounds each Execute call. Values <= 0 are ignored.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithHook installs a hook that runs before each transaction.
func WithHook(h Hook) Option {
	return func(e *Executor) {
		e.hook = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the time source for trace timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}
