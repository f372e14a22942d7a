package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/synchrony/internal/commit"
	"github.com/roach88/synchrony/internal/engine"
	"github.com/roach88/synchrony/internal/executor"
	"github.com/roach88/synchrony/internal/ir"
	"github.com/roach88/synchrony/internal/store"
	"github.com/roach88/synchrony/internal/testutil"
)

// Scenario defaults.
const (
	DefaultWorkers = 4
	DefaultTimeout = 5 * time.Second
)

// Option configures Run.
type Option func(*runner)

type runner struct {
	logger *slog.Logger
}

// WithLogger sets the engine logger. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(r *runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs on a fresh engine over a fresh in-memory database.
// Execution flow:
//  1. Build the transactions
//  2. Process them as one batch, persisting through the store
//  3. Replay the stored batch if it committed
//  4. Evaluate assertions
//
// An error means the scenario could not run; assertion failures are
// reported in the result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	r := runner{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&r)
	}

	txs, err := scenario.Build()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	workers := scenario.Config.Workers
	if workers == 0 {
		workers = DefaultWorkers
	}
	timeout := scenario.Config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	clock := testutil.NewStepClock(time.Millisecond)

	eng := engine.New(commit.NewLedger(nil),
		engine.WithWorkers(workers),
		engine.WithTimeout(timeout),
		engine.WithHook(stallHook(scenario)),
		engine.WithPersister(st),
		engine.WithIDGenerator(testutil.NewSequentialIDs(scenario.Name)),
		engine.WithTimeSource(clock.Now),
		engine.WithLogger(r.logger),
	)

	result := NewResult()
	result.fromBatch(eng.Process(ctx, txs, engine.Atomic(scenario.Config.Atomic)))

	if result.Batch.Success {
		replay, err := st.ReplayBatch(ctx, result.Batch.BatchID)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: replay: %w", scenario.Name, err)
		}
		if !replay.Match {
			result.AddError(fmt.Sprintf("stored batch does not replay: diffs=%v errors=%v", replay.Diffs, replay.Errors))
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// stallHook delays transactions that declare a stall. Returns nil when no
// transaction stalls.
func stallHook(s *Scenario) executor.Hook {
	stalls := map[string]time.Duration{}
	for _, tx := range s.Transactions {
		if tx.Stall > 0 {
			stalls[tx.ID] = tx.Stall
		}
	}
	if len(stalls) == 0 {
		return nil
	}
	return func(ctx context.Context, tx *ir.Transaction) error {
		d, ok := stalls[tx.ID]
		if !ok {
			return nil
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
