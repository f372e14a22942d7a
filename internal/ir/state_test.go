package ir

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateMapCloneIsIndependent(t *testing.T) {
	m := StatesFromBalances(map[string]int64{"alice": 1000, "bob": 500})
	c := m.Clone()
	c["alice"] = AccountState{Balance: 1, Nonce: 9}

	assert.Equal(t, AccountState{Balance: 1000}, m["alice"])
	assert.False(t, m.Equal(c))
}

func TestStateMapSelect(t *testing.T) {
	m := StatesFromBalances(map[string]int64{"alice": 1000, "bob": 500})
	sel := m.Select([]string{"alice", "zed"})

	assert.Equal(t, StateMap{"alice": {Balance: 1000}}, sel)
}

func TestStateMapTotalIsExact(t *testing.T) {
	m := StateMap{
		"a": {Balance: math.MaxInt64},
		"b": {Balance: math.MaxInt64},
	}
	want := new(big.Int).Mul(big.NewInt(math.MaxInt64), big.NewInt(2))

	assert.Equal(t, 0, want.Cmp(m.Total(nil)))
	assert.Equal(t, 0, big.NewInt(math.MaxInt64).Cmp(m.Total([]string{"a"})))
}

func TestStateMapBalancesEqual(t *testing.T) {
	a := StateMap{"x": {Balance: 5, Nonce: 1}}
	b := StateMap{"x": {Balance: 5, Nonce: 2}}

	assert.True(t, a.BalancesEqual(b))
	assert.False(t, a.Equal(b))
	assert.Equal(t, []string{"x"}, a.IDs())
	assert.Equal(t, map[string]int64{"x": 5}, a.Balances())
}
