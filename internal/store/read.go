package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/synchrony/internal/ir"
)

// ErrBatchNotFound is returned when a batch id is not in the store.
var ErrBatchNotFound = errors.New("batch not found")

// BatchRecord is a stored batch header.
type BatchRecord struct {
	ID            string    `json:"id"`
	Seq           int64     `json:"seq"`
	Hash          string    `json:"hash"`
	Version       uint64    `json:"version"`
	Atomic        bool      `json:"atomic"`
	CommittedAt   time.Time `json:"committed_at"`
	EngineVersion string    `json:"engine_version"`
	Transactions  int       `json:"transactions"`
	Committed     int       `json:"committed"`
}

// TxRecord is one stored transaction with its final status.
type TxRecord struct {
	TxID        string          `json:"tx_id"`
	Seq         int64           `json:"seq"`
	Digest      string          `json:"digest"`
	Status      string          `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	CommitIndex int             `json:"commit_index"` // -1 if rolled back
	Tx          *ir.Transaction `json:"transaction"`
}

// AccountChange is the pre- and post-batch state of one account.
type AccountChange struct {
	Account string          `json:"account"`
	Pre     ir.AccountState `json:"pre"`
	Post    ir.AccountState `json:"post"`
}

// LoadAccounts returns the current authoritative account states and the
// ledger version of the last committed batch (0 for an empty store).
func (s *Store) LoadAccounts(ctx context.Context) (ir.StateMap, uint64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, balance, nonce
		FROM accounts
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, 0, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	states := make(ir.StateMap)
	for rows.Next() {
		var id string
		var st ir.AccountState
		if err := rows.Scan(&id, &st.Balance, &st.Nonce); err != nil {
			return nil, 0, fmt.Errorf("scan account: %w", err)
		}
		states[id] = st
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate accounts: %w", err)
	}

	var version uint64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM batches`).Scan(&version); err != nil {
		return nil, 0, fmt.Errorf("query ledger version: %w", err)
	}
	return states, version, nil
}

// LastBatchSeq returns the highest stored batch sequence number, or 0.
func (s *Store) LastBatchSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM batches`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last batch seq: %w", err)
	}
	return seq, nil
}

const batchColumns = `
	b.id, b.seq, b.hash, b.version, b.atomic, b.committed_at, b.engine_version,
	(SELECT COUNT(*) FROM batch_transactions t WHERE t.batch_id = b.id),
	(SELECT COUNT(*) FROM batch_transactions t WHERE t.batch_id = b.id AND t.status = 'COMMITTED')
`

// ListBatches returns every stored batch ordered by sequence number.
// Returns an empty slice (not nil) for an empty store.
func (s *Store) ListBatches(ctx context.Context) ([]BatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+batchColumns+`
		FROM batches b
		ORDER BY b.seq ASC, b.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	batches := []BatchRecord{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return batches, nil
}

// ReadBatch returns one batch header. Returns ErrBatchNotFound if absent.
func (s *Store) ReadBatch(ctx context.Context, id string) (BatchRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+`
		FROM batches b
		WHERE b.id = ?
	`, id)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return BatchRecord{}, fmt.Errorf("read batch %s: %w", id, ErrBatchNotFound)
	}
	return b, err
}

// LatestBatch returns the batch with the highest sequence number.
func (s *Store) LatestBatch(ctx context.Context) (BatchRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+`
		FROM batches b
		ORDER BY b.seq DESC
		LIMIT 1
	`)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return BatchRecord{}, fmt.Errorf("latest batch: %w", ErrBatchNotFound)
	}
	return b, err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(r rowScanner) (BatchRecord, error) {
	var b BatchRecord
	var atomic int
	var committedAt string
	err := r.Scan(&b.ID, &b.Seq, &b.Hash, &b.Version, &atomic, &committedAt, &b.EngineVersion, &b.Transactions, &b.Committed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return b, err
		}
		return b, fmt.Errorf("scan batch: %w", err)
	}
	b.Atomic = atomic != 0
	if b.CommittedAt, err = parseTime(committedAt); err != nil {
		return b, err
	}
	return b, nil
}

// ReadBatchTransactions returns a batch's transactions in precedence order
// (seq, then id).
func (s *Store) ReadBatchTransactions(ctx context.Context, batchID string) ([]TxRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_id, seq, digest, payload, status, reason, COALESCE(commit_index, -1)
		FROM batch_transactions
		WHERE batch_id = ?
		ORDER BY seq ASC, tx_id COLLATE BINARY ASC
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query batch transactions: %w", err)
	}
	defer rows.Close()

	txs := []TxRecord{}
	for rows.Next() {
		var r TxRecord
		var payload string
		if err := rows.Scan(&r.TxID, &r.Seq, &r.Digest, &payload, &r.Status, &r.Reason, &r.CommitIndex); err != nil {
			return nil, fmt.Errorf("scan batch transaction: %w", err)
		}
		if r.Tx, err = unmarshalTransaction(payload); err != nil {
			return nil, fmt.Errorf("batch %s transaction %s: %w", batchID, r.TxID, err)
		}
		txs = append(txs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch transactions: %w", err)
	}
	return txs, nil
}

// ReadBatchAccounts returns the pre- and post-batch state of every account
// the batch referenced, ordered by account id.
func (s *Store) ReadBatchAccounts(ctx context.Context, batchID string) ([]AccountChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, pre_balance, pre_nonce, post_balance, post_nonce
		FROM batch_accounts
		WHERE batch_id = ?
		ORDER BY account_id COLLATE BINARY ASC
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query batch accounts: %w", err)
	}
	defer rows.Close()

	changes := []AccountChange{}
	for rows.Next() {
		var c AccountChange
		if err := rows.Scan(&c.Account, &c.Pre.Balance, &c.Pre.Nonce, &c.Post.Balance, &c.Post.Nonce); err != nil {
			return nil, fmt.Errorf("scan batch account: %w", err)
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch accounts: %w", err)
	}
	return changes, nil
}

// ReadTrace returns a batch's execution trace in append order.
func (s *Store) ReadTrace(ctx context.Context, batchID string) ([]ir.TraceEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, tx_id, worker, level, ts, reason
		FROM trace_events
		WHERE batch_id = ?
		ORDER BY seq ASC
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query trace: %w", err)
	}
	defer rows.Close()

	events := []ir.TraceEvent{}
	for rows.Next() {
		var ev ir.TraceEvent
		var kind, ts string
		if err := rows.Scan(&ev.Seq, &kind, &ev.TxID, &ev.Worker, &ev.Level, &ts, &ev.Reason); err != nil {
			return nil, fmt.Errorf("scan trace event: %w", err)
		}
		ev.Kind = ir.EventKind(kind)
		if ev.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trace: %w", err)
	}
	return events, nil
}
