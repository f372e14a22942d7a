package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transferTx(id string, seq int64, from, to string, amount int64) *Transaction {
	return MustTransaction(TxSpec{
		ID:       id,
		Seq:      seq,
		Accounts: map[string]int64{from: 1000, to: 500},
		Ops: []Operation{
			Subtract{Target: from, Amount: amount},
			Add{Target: to, Amount: amount},
		},
		Postconditions: []Condition{{Target: from, Cmp: CmpGE, Value: 0}},
	})
}

func TestTransactionDigestDeterminism(t *testing.T) {
	tx := transferTx("t1", 1, "alice", "bob", 100)

	d1, err := TransactionDigest(tx)
	require.NoError(t, err)
	d2, err := TransactionDigest(tx)
	require.NoError(t, err)

	assert.Equal(t, d1, d2, "TransactionDigest must be deterministic")
	assert.Len(t, d1, 64, "SHA-256 hex is 64 characters")
}

func TestTransactionDigestChangesWithInput(t *testing.T) {
	base := transferTx("t1", 1, "alice", "bob", 100)
	otherID := transferTx("t2", 1, "alice", "bob", 100)
	otherSeq := transferTx("t1", 2, "alice", "bob", 100)
	otherAmount := transferTx("t1", 1, "alice", "bob", 101)

	d := func(tx *Transaction) string {
		h, err := TransactionDigest(tx)
		require.NoError(t, err)
		return h
	}

	assert.NotEqual(t, d(base), d(otherID), "Different id should produce different digest")
	assert.NotEqual(t, d(base), d(otherSeq), "Different seq should produce different digest")
	assert.NotEqual(t, d(base), d(otherAmount), "Different amount should produce different digest")
}

func TestBatchHashIgnoresInputOrder(t *testing.T) {
	t1 := transferTx("t1", 1, "alice", "bob", 100)
	t2 := transferTx("t2", 2, "carol", "dave", 50)

	assert.Equal(t, MustBatchHash([]*Transaction{t1, t2}), MustBatchHash([]*Transaction{t2, t1}))
	assert.NotEqual(t, MustBatchHash([]*Transaction{t1}), MustBatchHash([]*Transaction{t1, t2}))
}

func TestBatchHashEmpty(t *testing.T) {
	h, err := BatchHash(nil)
	require.NoError(t, err)
	assert.Equal(t, hashWithDomain(DomainBatch, []byte("[]")), h)
}

func TestStateHashIncludesNonce(t *testing.T) {
	a, err := StateHash(StateMap{"alice": {Balance: 100, Nonce: 1}})
	require.NoError(t, err)
	b, err := StateHash(StateMap{"alice": {Balance: 100, Nonce: 2}})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDomainSeparation(t *testing.T) {
	data := []byte(`{"a":1}`)
	assert.NotEqual(t, hashWithDomain(DomainTransaction, data), hashWithDomain(DomainBatch, data))
	assert.NotEqual(t, hashWithDomain(DomainBatch, data), hashWithDomain(DomainState, data))
}
