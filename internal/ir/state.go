package ir

import (
	"math/big"
	"sort"
)

// AccountState is a named balance plus a monotonically increasing nonce.
type AccountState struct {
	Balance int64  `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// StateMap maps account ids to their state.
//
// A StateMap is owned by exactly one execution context at a time. Callers
// hand out copies via Clone or Select, never the map itself.
type StateMap map[string]AccountState

// StatesFromBalances builds a StateMap with zero nonces.
func StatesFromBalances(balances map[string]int64) StateMap {
	m := make(StateMap, len(balances))
	for id, bal := range balances {
		m[id] = AccountState{Balance: bal}
	}
	return m
}

// Clone returns an independent copy of m.
func (m StateMap) Clone() StateMap {
	out := make(StateMap, len(m))
	for id, st := range m {
		out[id] = st
	}
	return out
}

// Select returns a copy restricted to ids. Ids absent from m are skipped.
func (m StateMap) Select(ids []string) StateMap {
	out := make(StateMap, len(ids))
	for _, id := range ids {
		if st, ok := m[id]; ok {
			out[id] = st
		}
	}
	return out
}

// IDs returns the account ids in sorted order.
func (m StateMap) IDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Balances returns the balance of every account.
func (m StateMap) Balances() map[string]int64 {
	out := make(map[string]int64, len(m))
	for id, st := range m {
		out[id] = st.Balance
	}
	return out
}

// Total returns the exact sum of balances over ids. A nil ids sums every
// account.
func (m StateMap) Total(ids []string) *big.Int {
	if ids == nil {
		ids = m.IDs()
	}
	sum := new(big.Int)
	for _, id := range ids {
		sum.Add(sum, big.NewInt(m[id].Balance))
	}
	return sum
}

// Equal reports whether m and other hold the same balances and nonces.
func (m StateMap) Equal(other StateMap) bool {
	if len(m) != len(other) {
		return false
	}
	for id, st := range m {
		if o, ok := other[id]; !ok || o != st {
			return false
		}
	}
	return true
}

// BalancesEqual compares balances only, ignoring nonces.
func (m StateMap) BalancesEqual(other StateMap) bool {
	if len(m) != len(other) {
		return false
	}
	for id, st := range m {
		if o, ok := other[id]; !ok || o.Balance != st.Balance {
			return false
		}
	}
	return true
}
