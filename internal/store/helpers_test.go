package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/synchrony/internal/commit"
	"github.com/roach88/synchrony/internal/engine"
	"github.com/roach88/synchrony/internal/ir"
	"github.com/roach88/synchrony/internal/testutil"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// newPersistingEngine returns an engine that persists into s.
func newPersistingEngine(t *testing.T, s *Store) *engine.Engine {
	t.Helper()
	clock := testutil.NewStepClock(time.Millisecond)
	return engine.New(commit.NewLedger(nil),
		engine.WithPersister(s),
		engine.WithIDGenerator(testutil.NewSequentialIDs("batch")),
		engine.WithTimeSource(clock.Now),
	)
}

// commitBatch processes txs and fails the test unless the batch commits.
func commitBatch(t *testing.T, e *engine.Engine, txs ...*ir.Transaction) *engine.BatchResult {
	t.Helper()
	res := e.Process(context.Background(), txs)
	if !res.Success {
		t.Fatalf("batch failed: %s: %s", res.ErrorType, res.ErrorMessage)
	}
	return res
}

// testRecord builds a minimal committed record by hand.
func testRecord(id string, seq int64, version uint64) *commit.Record {
	tx := testutil.Deposit("T-"+id, 1, "acct-"+id, 10, 5)
	return &commit.Record{
		BatchID:      id,
		BatchSeq:     seq,
		BatchHash:    ir.MustBatchHash([]*ir.Transaction{tx}),
		Version:      version,
		Transactions: []*ir.Transaction{tx},
		Committed:    []string{tx.ID},
		Pre:          ir.StateMap{"acct-" + id: {Balance: 10}},
		Post:         ir.StateMap{"acct-" + id: {Balance: 15, Nonce: 1}},
		Trace: []ir.TraceEvent{
			{Seq: 1, Kind: ir.EventStart, TxID: tx.ID, Timestamp: testutil.Epoch},
			{Seq: 2, Kind: ir.EventCommit, TxID: tx.ID, Timestamp: testutil.Epoch.Add(time.Millisecond)},
		},
		CommittedAt: testutil.Epoch,
	}
}
