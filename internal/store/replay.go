package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/synchrony/internal/executor"
	"github.com/roach88/synchrony/internal/graph"
	"github.com/roach88/synchrony/internal/ir"
)

// ReplayResult reports whether re-executing a stored batch reproduces what
// was committed.
type ReplayResult struct {
	BatchID   string        `json:"batch_id"`
	Match     bool          `json:"match"`
	HashMatch bool          `json:"hash_match"`
	Committed []string      `json:"committed"`    // replayed commit order
	Stored    []string      `json:"stored_order"` // stored commit order
	Diffs     []AccountDiff `json:"diffs,omitempty"`
	Errors    []string      `json:"errors,omitempty"`
}

// AccountDiff is one account whose replayed state differs from the stored
// post-batch state.
type AccountDiff struct {
	Account  string          `json:"account"`
	Stored   ir.AccountState `json:"stored"`
	Replayed ir.AccountState `json:"replayed"`
}

// ReplayBatch re-executes a stored batch serially from its stored pre-batch
// states and compares the outcome with the stored post-batch states and
// transaction statuses.
//
// The same executor path runs as during the original commit, on one worker
// in topological order. A mismatch means the stored record was altered or
// the engine's semantics changed.
func (s *Store) ReplayBatch(ctx context.Context, batchID string) (*ReplayResult, error) {
	b, err := s.ReadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	recs, err := s.ReadBatchTransactions(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", batchID, err)
	}
	changes, err := s.ReadBatchAccounts(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", batchID, err)
	}

	txs := make([]*ir.Transaction, len(recs))
	for i, r := range recs {
		txs[i] = r.Tx
	}
	pre := make(ir.StateMap, len(changes))
	stored := make(ir.StateMap, len(changes))
	for _, c := range changes {
		pre[c.Account] = c.Pre
		stored[c.Account] = c.Post
	}

	res := &ReplayResult{BatchID: batchID}
	if hash, err := ir.BatchHash(txs); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("hash: %v", err))
	} else {
		res.HashMatch = hash == b.Hash
		if !res.HashMatch {
			res.Errors = append(res.Errors, fmt.Sprintf("batch hash %s does not match stored %s", hash, b.Hash))
		}
	}

	out, err := executor.New().ExecuteDirect(ctx, graph.Build(txs), pre)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", batchID, err)
	}
	res.Committed = out.Committed
	res.Stored = committedOrder(recs)
	if !sameSet(res.Committed, res.Stored) {
		res.Errors = append(res.Errors, fmt.Sprintf("replay committed %v, stored %v", res.Committed, res.Stored))
	}

	for _, id := range stored.IDs() {
		if got := out.States[id]; got != stored[id] {
			res.Diffs = append(res.Diffs, AccountDiff{Account: id, Stored: stored[id], Replayed: got})
		}
	}
	for _, r := range recs {
		_, faulted := out.Faults[r.TxID]
		if (r.Status == "COMMITTED") == faulted {
			res.Errors = append(res.Errors, fmt.Sprintf("transaction %s: stored %s, replay disagrees", r.TxID, r.Status))
		}
	}

	res.Match = res.HashMatch && len(res.Diffs) == 0 && len(res.Errors) == 0
	return res, nil
}

// ReplayAll replays every stored batch in sequence order and also checks
// that each batch's pre-batch states continue from the batches before it.
func (s *Store) ReplayAll(ctx context.Context) ([]*ReplayResult, error) {
	batches, err := s.ListBatches(ctx)
	if err != nil {
		return nil, err
	}

	current := make(ir.StateMap)
	results := make([]*ReplayResult, 0, len(batches))
	for _, b := range batches {
		res, err := s.ReplayBatch(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		changes, err := s.ReadBatchAccounts(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		for _, c := range changes {
			if st, ok := current[c.Account]; ok && st != c.Pre {
				res.Errors = append(res.Errors, fmt.Sprintf("account %s: pre-batch state %+v does not continue from %+v", c.Account, c.Pre, st))
				res.Match = false
			}
			current[c.Account] = c.Post
		}
		results = append(results, res)
	}
	return results, nil
}

// committedOrder returns the stored commit order of a batch.
func committedOrder(recs []TxRecord) []string {
	committed := slices.DeleteFunc(slices.Clone(recs), func(r TxRecord) bool { return r.CommitIndex < 0 })
	slices.SortFunc(committed, func(a, b TxRecord) int { return a.CommitIndex - b.CommitIndex })
	ids := make([]string, len(committed))
	for i, r := range committed {
		ids[i] = r.TxID
	}
	return ids
}

func sameSet(a, b []string) bool {
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
