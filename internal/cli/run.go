package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/synchrony/internal/commit"
	"github.com/roach88/synchrony/internal/compiler"
	"github.com/roach88/synchrony/internal/config"
	"github.com/roach88/synchrony/internal/engine"
	"github.com/roach88/synchrony/internal/ir"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	storeFlags
	Workers int
	Timeout time.Duration
	Atomic  bool

	// IDGenerator overrides the batch id generator (for testing).
	// If nil, the engine default (UUIDv7) is used.
	IDGenerator engine.IDGenerator
}

// RunResult is the outcome of one processed batch.
type RunResult struct {
	Batch        string              `json:"batch,omitempty"`
	BatchID      string              `json:"batch_id"`
	BatchSeq     int64               `json:"batch_seq"`
	Success      bool                `json:"success"`
	ErrorType    engine.ErrorType    `json:"error_type,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	Levels       [][]string          `json:"levels"`
	Committed    []string            `json:"committed"`
	RolledBack   map[string]string   `json:"rolled_back,omitempty"`
	Balances     map[string]int64    `json:"balances"`
	Version      uint64              `json:"ledger_version"`
	Fallback     bool                `json:"fallback"`
	Warnings     []string            `json:"warnings,omitempty"`
	Metrics      engine.BatchMetrics `json:"metrics"`
}

// Text renders the result for humans.
func (r RunResult) Text() string {
	var sb strings.Builder
	name := r.Batch
	if name == "" {
		name = r.BatchID
	}
	if r.Success {
		fmt.Fprintf(&sb, "✓ batch %s committed (seq %d, id %s)\n", name, r.BatchSeq, r.BatchID)
	} else {
		fmt.Fprintf(&sb, "✗ batch %s rolled back (seq %d, id %s)\n", name, r.BatchSeq, r.BatchID)
	}
	for i, level := range r.Levels {
		fmt.Fprintf(&sb, "  level %d: %s\n", i, strings.Join(level, ", "))
	}
	if len(r.Committed) > 0 {
		fmt.Fprintf(&sb, "  committed: %s\n", strings.Join(r.Committed, ", "))
	}
	for _, id := range ir.SortedKeys(r.RolledBack) {
		fmt.Fprintf(&sb, "  rolled back: %s (%s)\n", id, r.RolledBack[id])
	}
	for _, acct := range ir.SortedKeys(r.Balances) {
		fmt.Fprintf(&sb, "  %s = %d\n", acct, r.Balances[acct])
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&sb, "  warning: %s\n", w)
	}
	if r.Fallback {
		sb.WriteString("  executed serially after proof failure\n")
	}
	fmt.Fprintf(&sb, "  elapsed %s, %d worker(s), %.2fx\n",
		r.Metrics.Elapsed, r.Metrics.WorkersSpawned, r.Metrics.ThroughputImprovement)
	return sb.String()
}

func newRunResult(name string, res *engine.BatchResult) RunResult {
	out := RunResult{
		Batch:        name,
		BatchID:      res.BatchID,
		BatchSeq:     res.BatchSeq,
		Success:      res.Success,
		ErrorType:    res.ErrorType,
		ErrorMessage: res.ErrorMessage,
		Levels:       res.Levels,
		Committed:    res.Committed(),
		Balances:     res.FinalStates.Balances(),
		Version:      res.Version,
		Fallback:     res.Fallback,
		Warnings:     res.Warnings,
		Metrics:      res.Metrics,
	}
	if out.Levels == nil {
		out.Levels = [][]string{}
	}
	if out.Committed == nil {
		out.Committed = []string{}
	}
	for _, id := range res.RolledBack() {
		if out.RolledBack == nil {
			out.RolledBack = map[string]string{}
		}
		out.RolledBack[id] = res.Statuses[id].Reason
	}
	return out
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <batch.cue>",
		Short: "Process a batch and commit it to the store",
		Long: `Compile a CUE batch file, process it, and record the result.

The ledger is restored from the store before the batch runs, so
successive runs against the same database continue where the last one
stopped. A batch that fails is rolled back and leaves the store unchanged.

Exit codes:
  0 - Batch committed
  1 - Batch rolled back
  2 - Command error (invalid batch file, unreadable store, etc.)

Examples:
  synchrony run --db ./synchrony.db payroll.cue
  synchrony run --backend badger --db ./data payroll.cue
  synchrony run --workers 2 --timeout 5s --atomic payroll.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the database (default from config)")
	cmd.Flags().StringVar(&opts.Backend, "backend", "", "store backend (sqlite|badger)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "worker pool size")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "execution timeout")
	cmd.Flags().BoolVar(&opts.Atomic, "atomic", false, "roll back the whole batch on any transaction fault")

	return cmd
}

// applyFlags overrides cfg with the flags the user set.
func (o *RunOptions) applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("workers") {
		cfg.Workers = o.Workers
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Timeout = o.Timeout
	}
	if cmd.Flags().Changed("atomic") {
		cfg.Atomic = o.Atomic
	}
	cfg.Backend, cfg.DB = o.resolve(*cfg)
	return cfg.Validate()
}

func runBatch(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if err := opts.applyFlags(cmd, &cfg); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	logger := opts.logger(cfg, cmd.ErrOrStderr())

	b, err := LoadBatch(path)
	if err != nil {
		return loadFailure(formatter, err)
	}
	if findings := compiler.Validate(b); compiler.HasErrors(findings) {
		return outputValidation(formatter, newValidationResult(path, b, findings, nil), ExitCommandError)
	}

	be, err := openBackend(cfg.Backend, cfg.DB, logger)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer func() {
		if closeErr := be.Close(); closeErr != nil {
			logger.Error("error closing store", "error", closeErr)
		}
	}()

	// Signal handling for graceful shutdown. Use the command's context if
	// available (for testing).
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics, err := engine.NewMetrics("synchrony")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create metrics", err)
	}
	eng, err := restoreEngine(ctx, be, cfg, opts.IDGenerator, logger, engine.WithMetrics(metrics))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to restore ledger", err)
	}

	logger.Info("processing batch", "file", path, "batch", b.Name, "transactions", len(b.Transactions))
	res := eng.Process(ctx, b.Transactions, engine.Atomic(b.Atomic))
	logger.Debug("batch metrics",
		"committed_tx", metrics.Counter("synchrony.tx.committed"),
		"rolled_back_tx", metrics.Counter("synchrony.tx.rolled_back"),
		"fallbacks", metrics.Counter("synchrony.batch.fallback"),
	)

	result := newRunResult(b.Name, res)
	if !res.Success {
		return formatter.Failure(ExitFailure, string(res.ErrorType), res.ErrorMessage, result)
	}
	return formatter.Success(result)
}

// restoreEngine builds an engine whose ledger and batch clock continue
// from the store's last committed batch.
func restoreEngine(ctx context.Context, be backend, cfg config.Config, ids engine.IDGenerator, logger *slog.Logger, extra ...engine.Option) (*engine.Engine, error) {
	states, version, err := be.LoadAccounts(ctx)
	if err != nil {
		return nil, err
	}
	seq, err := be.LastBatchSeq(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debug("ledger restored", "accounts", len(states), "version", version, "last_batch_seq", seq)

	ledger := commit.NewLedger(nil)
	ledger.Load(states, version)

	opts := append(cfg.EngineOptions(logger),
		engine.WithPersister(be),
		engine.WithClock(engine.NewClockAt(seq)),
	)
	if ids != nil {
		opts = append(opts, engine.WithIDGenerator(ids))
	}
	opts = append(opts, extra...)
	return engine.New(ledger, opts...), nil
}
