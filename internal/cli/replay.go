package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/synchrony/internal/config"
	"github.com/roach88/synchrony/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	BatchID  string // optional - specific batch only
}

// ReplayReport holds the overall replay result.
type ReplayReport struct {
	Batches  []*store.ReplayResult `json:"batches"`
	Total    int                   `json:"total"`
	AllMatch bool                  `json:"all_match"`
}

// Text renders the report for humans.
func (r ReplayReport) Text() string {
	var sb strings.Builder
	if r.Total == 0 {
		return "No batches found in database.\n"
	}
	for _, b := range r.Batches {
		if b.Match {
			fmt.Fprintf(&sb, "✓ %s: %d committed, state reproduced\n", b.BatchID, len(b.Committed))
			continue
		}
		fmt.Fprintf(&sb, "✗ %s\n", b.BatchID)
		if !b.HashMatch {
			sb.WriteString("  batch hash mismatch\n")
		}
		for _, d := range b.Diffs {
			fmt.Fprintf(&sb, "  %s: stored %d (nonce %d), replayed %d (nonce %d)\n",
				d.Account, d.Stored.Balance, d.Stored.Nonce, d.Replayed.Balance, d.Replayed.Nonce)
		}
		for _, e := range b.Errors {
			fmt.Fprintf(&sb, "  %s\n", e)
		}
	}
	fmt.Fprintln(&sb)
	if r.AllMatch {
		fmt.Fprintf(&sb, "✓ All %d batch(es) replay\n", r.Total)
	} else {
		fmt.Fprintf(&sb, "✗ Replay mismatch\n")
	}
	return sb.String()
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-execute stored batches and verify their recorded state",
		Long: `Re-execute committed batches serially from their stored pre-state and
check that the stored post-state, commit set and batch hash are reproduced.
Without --batch every batch is replayed in sequence order and each batch's
pre-state must match the previous batch's post-state.

Replay reads the SQLite store.

Exit codes:
  0 - Every batch replays
  1 - Replay mismatch
  2 - Command error (database not found, etc.)

Examples:
  synchrony replay --db ./synchrony.db
  synchrony replay --db ./synchrony.db --batch 0190a7c4-...
  synchrony replay --db ./synchrony.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.BatchID, "batch", "", "replay a specific batch only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	path := cfg.DB
	if opts.Database != "" {
		path = opts.Database
	} else if cfg.Backend != config.BackendSQLite {
		_ = formatter.Error(ErrCodeStore, "replay requires the sqlite backend", nil)
		return NewExitError(ExitCommandError, "replay requires the sqlite backend")
	}

	st, err := store.Open(path)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var results []*store.ReplayResult
	if opts.BatchID != "" {
		var res *store.ReplayResult
		res, err = st.ReplayBatch(ctx, opts.BatchID)
		if res != nil {
			results = []*store.ReplayResult{res}
		}
	} else {
		results, err = st.ReplayAll(ctx)
	}
	if errors.Is(err, store.ErrBatchNotFound) {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "batch not found", err)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to replay", err)
	}

	report := ReplayReport{
		Batches:  results,
		Total:    len(results),
		AllMatch: true,
	}
	if report.Batches == nil {
		report.Batches = []*store.ReplayResult{}
	}
	for _, r := range results {
		formatter.VerboseLog("replayed %s: match=%t", r.BatchID, r.Match)
		if !r.Match {
			report.AllMatch = false
		}
	}

	if !report.AllMatch {
		return formatter.Failure(ExitFailure, "E_REPLAY_MISMATCH", "stored state is not reproduced", report)
	}
	return formatter.Success(report)
}
