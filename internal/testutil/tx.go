package testutil

import "github.com/roach88/synchrony/internal/ir"

// Transfer moves amount from one account to another. pre supplies the
// declared pre-batch balances of both accounts.
func Transfer(id string, seq int64, from, to string, amount int64, pre map[string]int64) *ir.Transaction {
	return ir.MustTransaction(ir.TxSpec{
		ID:       id,
		Seq:      seq,
		Accounts: map[string]int64{from: pre[from], to: pre[to]},
		Ops: []ir.Operation{
			ir.Subtract{Target: from, Amount: amount},
			ir.Add{Target: to, Amount: amount},
		},
		Postconditions: []ir.Condition{{Target: from, Cmp: ir.CmpGE, Value: 0}},
	})
}

// Deposit adds amount to acct from outside the batch. after lists
// explicit predecessors.
func Deposit(id string, seq int64, acct string, pre, amount int64, after ...string) *ir.Transaction {
	return ir.MustTransaction(ir.TxSpec{
		ID:        id,
		Seq:       seq,
		Accounts:  map[string]int64{acct: pre},
		Ops:       []ir.Operation{ir.Add{Target: acct, Amount: amount}},
		Flow:      amount,
		DependsOn: after,
	})
}

// Withdraw removes amount from acct to outside the batch.
func Withdraw(id string, seq int64, acct string, pre, amount int64, after ...string) *ir.Transaction {
	return ir.MustTransaction(ir.TxSpec{
		ID:        id,
		Seq:       seq,
		Accounts:  map[string]int64{acct: pre},
		Ops:       []ir.Operation{ir.Subtract{Target: acct, Amount: amount}},
		Flow:      -amount,
		DependsOn: after,
	})
}

// Claim assigns acct a new balance while declaring no external flow, so
// any change it makes is unbalanced unless another transaction offsets it.
func Claim(id string, seq int64, acct string, pre, value int64) *ir.Transaction {
	return ir.MustTransaction(ir.TxSpec{
		ID:       id,
		Seq:      seq,
		Accounts: map[string]int64{acct: pre},
		Ops:      []ir.Operation{ir.Assign{Target: acct, Value: value}},
	})
}

// Balances builds a StateMap with zero nonces.
func Balances(kv ...any) ir.StateMap {
	if len(kv)%2 != 0 {
		panic("testutil.Balances: odd argument count")
	}
	m := make(ir.StateMap, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		m[kv[i].(string)] = ir.AccountState{Balance: toInt64(kv[i+1])}
	}
	return m
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	default:
		panic("testutil.Balances: balance must be int or int64")
	}
}
