package prover

import (
	"sort"

	"github.com/roach88/synchrony/internal/ir"
)

// symState maps accounts to their symbolic balance. Accounts absent from the
// map still hold their pre-batch variable.
type symState map[string]Term

func (s symState) get(acct string) Term {
	if t, ok := s[acct]; ok {
		return t
	}
	return Var(acct)
}

func (s symState) clone() symState {
	out := make(symState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// runSymbolic applies tx against view and returns the terms it writes plus
// the conditions its successful execution implies.
func runSymbolic(tx *ir.Transaction, view symState) (symState, []Formula) {
	local := make(symState)
	read := func(acct string) Term {
		if t, ok := local[acct]; ok {
			return t
		}
		return view.get(acct)
	}

	var conds []Formula
	for _, op := range tx.Ops {
		switch o := op.(type) {
		case ir.Add:
			local[o.Target] = read(o.Target).Plus(o.Amount)
		case ir.Subtract:
			next := read(o.Target).Plus(-o.Amount)
			conds = append(conds, Cmp{Left: next, Op: ir.CmpGE, Right: Const(0)})
			local[o.Target] = next
		case ir.Assign:
			local[o.Target] = Const(o.Value)
		case ir.Check:
			conds = append(conds, Cmp{Left: read(o.Target), Op: o.Cmp, Right: Const(o.Value)})
		}
	}
	for _, c := range tx.Postconditions {
		conds = append(conds, Cmp{Left: read(c.Target), Op: c.Cmp, Right: Const(c.Value)})
	}
	return local, conds
}

// runSerial executes txs one after another on a single state.
func runSerial(txs []*ir.Transaction) (symState, []Formula) {
	state := make(symState)
	var conds []Formula
	for _, tx := range txs {
		writes, c := runSymbolic(tx, state)
		conds = append(conds, c...)
		for acct, t := range writes {
			state[acct] = t
		}
	}
	return state, conds
}

// runLevels executes each level against its level-start view and merges the
// writes in the order given.
func runLevels(levels [][]*ir.Transaction) symState {
	state := make(symState)
	for _, level := range levels {
		view := state.clone()
		for _, tx := range level {
			writes, _ := runSymbolic(tx, view)
			for acct, t := range writes {
				state[acct] = t
			}
		}
	}
	return state
}

func sortedAccounts(states ...symState) []string {
	seen := make(map[string]bool)
	for _, s := range states {
		for acct := range s {
			seen[acct] = true
		}
	}
	out := make([]string, 0, len(seen))
	for acct := range seen {
		out = append(out, acct)
	}
	sort.Strings(out)
	return out
}
