package store

import (
	"context"
	"fmt"

	"github.com/roach88/synchrony/internal/commit"
	"github.com/roach88/synchrony/internal/ir"
)

// Persist writes a committed batch in a single SQL transaction. It
// implements commit.Persister: the commit manager calls it under the ledger
// lock and swaps the in-memory ledger only if it returns nil.
//
// A batch id or sequence number that already exists is a constraint error;
// nothing is written.
func (s *Store) Persist(ctx context.Context, rec *commit.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persist batch %s: begin tx: %w", rec.BatchID, err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batches
		(id, seq, hash, version, atomic, committed_at, engine_version, schema_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.BatchID,
		rec.BatchSeq,
		rec.BatchHash,
		rec.Version,
		boolToInt(rec.Atomic),
		formatTime(rec.CommittedAt),
		ir.EngineVersion,
		ir.SchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("persist batch %s: insert batch: %w", rec.BatchID, err)
	}

	commitIndex := make(map[string]int, len(rec.Committed))
	for i, id := range rec.Committed {
		commitIndex[id] = i
	}
	for _, t := range rec.Transactions {
		payload, err := marshalTransaction(t)
		if err != nil {
			return fmt.Errorf("persist batch %s: %w", rec.BatchID, err)
		}
		digest, err := ir.TransactionDigest(t)
		if err != nil {
			return fmt.Errorf("persist batch %s: %w", rec.BatchID, err)
		}

		status, reason := "COMMITTED", ""
		var idx any
		if i, ok := commitIndex[t.ID]; ok {
			idx = i
		} else {
			status, reason = "ROLLED_BACK", rec.RolledBack[t.ID]
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO batch_transactions
			(batch_id, tx_id, seq, digest, payload, status, reason, commit_index)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.BatchID, t.ID, t.Seq, digest, payload, status, reason, idx)
		if err != nil {
			return fmt.Errorf("persist batch %s: insert transaction %s: %w", rec.BatchID, t.ID, err)
		}
	}

	for _, id := range rec.Post.IDs() {
		pre, post := rec.Pre[id], rec.Post[id]
		_, err = tx.ExecContext(ctx, `
			INSERT INTO batch_accounts
			(batch_id, account_id, pre_balance, pre_nonce, post_balance, post_nonce)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rec.BatchID, id, pre.Balance, pre.Nonce, post.Balance, post.Nonce)
		if err != nil {
			return fmt.Errorf("persist batch %s: insert batch account %s: %w", rec.BatchID, id, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO accounts (id, balance, nonce, version, batch_id)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				balance = excluded.balance,
				nonce = excluded.nonce,
				version = excluded.version,
				batch_id = excluded.batch_id
		`, id, post.Balance, post.Nonce, rec.Version, rec.BatchID)
		if err != nil {
			return fmt.Errorf("persist batch %s: upsert account %s: %w", rec.BatchID, id, err)
		}
	}

	for _, ev := range rec.Trace {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO trace_events
			(batch_id, seq, kind, tx_id, worker, level, ts, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.BatchID, ev.Seq, string(ev.Kind), ev.TxID, ev.Worker, ev.Level, formatTime(ev.Timestamp), ev.Reason)
		if err != nil {
			return fmt.Errorf("persist batch %s: insert trace event %d: %w", rec.BatchID, ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persist batch %s: commit: %w", rec.BatchID, err)
	}
	return nil
}
