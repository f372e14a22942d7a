package analysis

import (
	"github.com/tidwall/btree"

	"github.com/roach88/synchrony/internal/ir"
)

// Access holds the read and write sets of one transaction.
type Access struct {
	TxID   string
	Seq    int64
	Reads  *btree.Set[string]
	Writes *btree.Set[string]
}

// Analyze computes the access sets of every transaction, in input order.
//
// Write-set: targets of Add, Subtract and Assign.
// Read-set: targets of checks and postconditions not already written.
// A declared account referenced by nothing is ambiguous and counted as a
// write, trading parallelism for never missing a conflict.
func Analyze(txs []*ir.Transaction) []Access {
	out := make([]Access, len(txs))
	for i, tx := range txs {
		out[i] = AnalyzeOne(tx)
	}
	return out
}

// AnalyzeOne computes the access sets of a single transaction.
func AnalyzeOne(tx *ir.Transaction) Access {
	a := Access{
		TxID:   tx.ID,
		Seq:    tx.Seq,
		Reads:  &btree.Set[string]{},
		Writes: &btree.Set[string]{},
	}

	referenced := make(map[string]bool, len(tx.Accounts))
	for _, op := range tx.Ops {
		referenced[op.Account()] = true
		if op.Mutates() {
			a.Writes.Insert(op.Account())
		}
	}
	for _, op := range tx.Ops {
		if !op.Mutates() && !a.Writes.Contains(op.Account()) {
			a.Reads.Insert(op.Account())
		}
	}
	for _, c := range tx.Postconditions {
		referenced[c.Target] = true
		if !a.Writes.Contains(c.Target) {
			a.Reads.Insert(c.Target)
		}
	}
	for acct := range tx.Accounts {
		if !referenced[acct] {
			a.Writes.Insert(acct)
		}
	}
	return a
}

// ReadList returns the read-set in ascending order.
func (a Access) ReadList() []string {
	return setList(a.Reads)
}

// WriteList returns the write-set in ascending order.
func (a Access) WriteList() []string {
	return setList(a.Writes)
}

// Touched returns the union of both sets in ascending order.
func (a Access) Touched() []string {
	all := &btree.Set[string]{}
	for _, s := range []*btree.Set[string]{a.Reads, a.Writes} {
		s.Scan(func(k string) bool {
			all.Insert(k)
			return true
		})
	}
	return setList(all)
}

func setList(s *btree.Set[string]) []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, s.Len())
	s.Scan(func(k string) bool {
		out = append(out, k)
		return true
	})
	return out
}

// intersect returns the sorted intersection of a and b.
func intersect(a, b *btree.Set[string]) []string {
	if a.Len() > b.Len() {
		a, b = b, a
	}
	var out []string
	a.Scan(func(k string) bool {
		if b.Contains(k) {
			out = append(out, k)
		}
		return true
	})
	return out
}
