package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/synchrony/internal/config"
	"github.com/roach88/synchrony/internal/engine"
	"github.com/roach88/synchrony/internal/ir"
	"github.com/roach88/synchrony/internal/kvstore"
	"github.com/roach88/synchrony/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	storeFlags
	BatchID string // optional - defaults to the latest batch
	TxID    string // optional - filter to one transaction
}

// TxSummary is the final status of one stored transaction.
type TxSummary struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int `json:"total_events"`
	Starts      int `json:"starts"`
	Commits     int `json:"commits"`
	Rollbacks   int `json:"rollbacks"`
	Workers     int `json:"workers"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	BatchID      string                `json:"batch_id"`
	BatchSeq     int64                 `json:"batch_seq"`
	Events       []ir.TraceEvent       `json:"events"`
	Transactions []TxSummary           `json:"transactions"`
	Accounts     []store.AccountChange `json:"accounts"`
	Stats        TraceStats            `json:"stats"`
}

// Text renders the result for humans.
func (r TraceResult) Text() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Batch %s (seq %d)\n\n", r.BatchID, r.BatchSeq)

	sb.WriteString("Timeline:\n")
	for _, ev := range r.Events {
		fmt.Fprintf(&sb, "  [%d] %-8s %-12s worker=%d level=%d %s",
			ev.Seq, ev.Kind, ev.TxID, ev.Worker, ev.Level, ev.Timestamp.Format("15:04:05.000000"))
		if ev.Reason != "" {
			fmt.Fprintf(&sb, " (%s)", ev.Reason)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\nTransactions:\n")
	for _, tx := range r.Transactions {
		if tx.Reason != "" {
			fmt.Fprintf(&sb, "  %s %s: %s\n", tx.ID, tx.Status, tx.Reason)
		} else {
			fmt.Fprintf(&sb, "  %s %s\n", tx.ID, tx.Status)
		}
	}

	sb.WriteString("\nAccounts:\n")
	for _, a := range r.Accounts {
		fmt.Fprintf(&sb, "  %s: %d -> %d (nonce %d -> %d)\n",
			a.Account, a.Pre.Balance, a.Post.Balance, a.Pre.Nonce, a.Post.Nonce)
	}

	fmt.Fprintf(&sb, "\nStats: %d events, %d commits, %d rollbacks, %d worker(s)\n",
		r.Stats.TotalEvents, r.Stats.Commits, r.Stats.Rollbacks, r.Stats.Workers)
	return sb.String()
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the execution trace of a stored batch",
		Long: `Show how a committed batch executed.

The output includes:
- Timeline: START, COMMIT and ROLLBACK events with worker and level
- Transactions: final status of each transaction
- Accounts: pre- and post-batch state of every referenced account

Examples:
  synchrony trace --db ./synchrony.db
  synchrony trace --db ./synchrony.db --batch 0190a7c4-...
  synchrony trace --db ./synchrony.db --tx t1 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the database (default from config)")
	cmd.Flags().StringVar(&opts.Backend, "backend", "", "store backend (sqlite|badger)")
	cmd.Flags().StringVar(&opts.BatchID, "batch", "", "batch id (default: latest batch)")
	cmd.Flags().StringVar(&opts.TxID, "tx", "", "filter events to one transaction")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	kind, path := opts.resolve(cfg)

	var result TraceResult
	switch kind {
	case config.BackendSQLite:
		result, err = traceSQLite(ctx, path, opts.BatchID)
	case config.BackendBadger:
		result, err = traceBadger(ctx, path, opts.BatchID, opts.logger(cfg, cmd.ErrOrStderr()))
	default:
		err = fmt.Errorf("unknown backend %q", kind)
	}
	if errors.Is(err, store.ErrBatchNotFound) || errors.Is(err, kvstore.ErrBatchNotFound) {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "batch not found", err)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}

	if opts.TxID != "" {
		result.Events = filterEvents(result.Events, opts.TxID)
	}
	result.Stats = traceStats(result.Events)
	return formatter.Success(result)
}

func traceSQLite(ctx context.Context, path, batchID string) (TraceResult, error) {
	st, err := store.Open(path)
	if err != nil {
		return TraceResult{}, err
	}
	defer st.Close()

	var b store.BatchRecord
	if batchID == "" {
		b, err = st.LatestBatch(ctx)
	} else {
		b, err = st.ReadBatch(ctx, batchID)
	}
	if err != nil {
		return TraceResult{}, err
	}

	result := TraceResult{BatchID: b.ID, BatchSeq: b.Seq}
	if result.Events, err = st.ReadTrace(ctx, b.ID); err != nil {
		return TraceResult{}, err
	}
	txs, err := st.ReadBatchTransactions(ctx, b.ID)
	if err != nil {
		return TraceResult{}, err
	}
	for _, tx := range txs {
		result.Transactions = append(result.Transactions, TxSummary{ID: tx.TxID, Status: tx.Status, Reason: tx.Reason})
	}
	if result.Accounts, err = st.ReadBatchAccounts(ctx, b.ID); err != nil {
		return TraceResult{}, err
	}
	return result, nil
}

func traceBadger(ctx context.Context, path, batchID string, logger *slog.Logger) (TraceResult, error) {
	kv, err := kvstore.Open(path, kvstore.WithLogger(logger))
	if err != nil {
		return TraceResult{}, err
	}
	defer kv.Close()

	if batchID == "" {
		ids, err := kv.ListBatches(ctx)
		if err != nil {
			return TraceResult{}, err
		}
		if len(ids) == 0 {
			return TraceResult{}, fmt.Errorf("latest batch: %w", kvstore.ErrBatchNotFound)
		}
		batchID = ids[len(ids)-1]
	}
	entry, err := kv.ReadBatch(ctx, batchID)
	if err != nil {
		return TraceResult{}, err
	}

	result := TraceResult{BatchID: entry.ID, BatchSeq: entry.Seq, Events: entry.Trace}
	for _, tx := range entry.Transactions {
		sum := TxSummary{ID: tx.ID, Status: string(engine.StatusCommitted)}
		if reason, ok := entry.RolledBack[tx.ID]; ok {
			sum.Status, sum.Reason = string(engine.StatusRolledBack), reason
		}
		result.Transactions = append(result.Transactions, sum)
	}
	for _, acct := range entry.Pre.IDs() {
		result.Accounts = append(result.Accounts, store.AccountChange{
			Account: acct,
			Pre:     entry.Pre[acct],
			Post:    entry.Post[acct],
		})
	}
	return result, nil
}

func filterEvents(events []ir.TraceEvent, txID string) []ir.TraceEvent {
	out := []ir.TraceEvent{}
	for _, ev := range events {
		if ev.TxID == txID {
			out = append(out, ev)
		}
	}
	return out
}

func traceStats(events []ir.TraceEvent) TraceStats {
	s := TraceStats{TotalEvents: len(events), Workers: len(ir.Workers(events))}
	for _, ev := range events {
		switch ev.Kind {
		case ir.EventStart:
			s.Starts++
		case ir.EventCommit:
			s.Commits++
		case ir.EventRollback:
			s.Rollbacks++
		}
	}
	return s
}
