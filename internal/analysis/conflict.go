package analysis

import (
	"sort"

	"github.com/tidwall/btree"

	"github.com/roach88/synchrony/internal/ir"
)

// ConflictKind classifies an access collision between two transactions.
type ConflictKind string

const (
	RAW ConflictKind = "RAW" // predecessor writes what successor reads
	WAW ConflictKind = "WAW" // both write
	WAR ConflictKind = "WAR" // predecessor reads what successor writes
)

// Conflict records that After must execute after Before.
type Conflict struct {
	Before   string         `json:"before"`
	After    string         `json:"after"`
	Kinds    []ConflictKind `json:"kinds"`
	Accounts []string       `json:"accounts"`
}

// Classify returns the conflict kinds and accounts between a predecessor
// and a successor. An empty result means the pair is independent.
func Classify(before, after Access) ([]ConflictKind, []string) {
	var kinds []ConflictKind
	accounts := &btree.Set[string]{}

	check := func(kind ConflictKind, shared []string) {
		if len(shared) == 0 {
			return
		}
		kinds = append(kinds, kind)
		for _, acct := range shared {
			accounts.Insert(acct)
		}
	}
	check(RAW, intersect(before.Writes, after.Reads))
	check(WAW, intersect(before.Writes, after.Writes))
	check(WAR, intersect(before.Reads, after.Writes))

	return kinds, setList(accounts)
}

// Detect finds every conflicting pair in the batch. The transaction with the
// lower (Seq, ID) is always the predecessor, whatever the conflict kind. A
// transaction never conflicts with itself.
//
// Conflicts are returned ordered by (Before, After) precedence.
func Detect(txs []*ir.Transaction, accesses []Access) []Conflict {
	order := make([]int, len(txs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return txs[order[i]].Precedes(txs[order[j]])
	})
	rank := make([]int, len(txs))
	for r, idx := range order {
		rank[idx] = r
	}

	// Only pairs sharing an account can conflict.
	byAccount := make(map[string][]int)
	for i, a := range accesses {
		for _, acct := range a.Touched() {
			byAccount[acct] = append(byAccount[acct], i)
		}
	}
	type pair struct{ lo, hi int }
	seen := make(map[pair]bool)
	var pairs []pair
	for _, idxs := range byAccount {
		for x := 0; x < len(idxs); x++ {
			for y := x + 1; y < len(idxs); y++ {
				p := pair{idxs[x], idxs[y]}
				if rank[p.lo] > rank[p.hi] {
					p.lo, p.hi = p.hi, p.lo
				}
				if !seen[p] {
					seen[p] = true
					pairs = append(pairs, p)
				}
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if rank[pairs[i].lo] != rank[pairs[j].lo] {
			return rank[pairs[i].lo] < rank[pairs[j].lo]
		}
		return rank[pairs[i].hi] < rank[pairs[j].hi]
	})

	var out []Conflict
	for _, p := range pairs {
		kinds, accounts := Classify(accesses[p.lo], accesses[p.hi])
		if len(kinds) == 0 {
			continue
		}
		out = append(out, Conflict{
			Before:   txs[p.lo].ID,
			After:    txs[p.hi].ID,
			Kinds:    kinds,
			Accounts: accounts,
		})
	}
	return out
}

// Has reports whether c includes kind.
func (c Conflict) Has(kind ConflictKind) bool {
	for _, k := range c.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
