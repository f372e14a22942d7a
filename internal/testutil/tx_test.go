package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synchrony/internal/ir"
)

func TestBuildersProduceValidTransactions(t *testing.T) {
	pre := map[string]int64{"alice": 1000, "bob": 500}
	txs := []*ir.Transaction{
		Transfer("T1", 1, "alice", "bob", 100, pre),
		Deposit("T2", 2, "alice", 1000, 100, "T1"),
		Withdraw("T3", 3, "alice", 1000, 50),
		Claim("T4", 4, "bob", 500, 700),
	}
	for _, tx := range txs {
		require.NoError(t, tx.Validate(), tx.ID)
	}

	assert.Equal(t, int64(100), txs[1].Flow)
	assert.Equal(t, []string{"T1"}, txs[1].DependsOn)
	assert.Equal(t, int64(-50), txs[2].Flow)
	assert.Equal(t, int64(0), txs[3].Flow)
	assert.Equal(t, map[string]int64{"alice": 1000, "bob": 500}, txs[0].Accounts)
}

func TestBalances(t *testing.T) {
	m := Balances("alice", 1000, "bob", int64(5))
	assert.Equal(t, ir.AccountState{Balance: 1000}, m["alice"])
	assert.Equal(t, ir.AccountState{Balance: 5}, m["bob"])

	assert.Panics(t, func() { Balances("alice") })
}
