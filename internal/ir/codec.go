package ir

import (
	"encoding/json"
	"fmt"
)

// opRecord is the encoded form of an Operation. The "op" field selects the
// variant.
type opRecord struct {
	Op      OpKind     `json:"op" yaml:"op"`
	Account string     `json:"account" yaml:"account"`
	Amount  int64      `json:"amount,omitempty" yaml:"amount,omitempty"`
	Value   int64      `json:"value,omitempty" yaml:"value,omitempty"`
	Cmp     Comparator `json:"cmp,omitempty" yaml:"cmp,omitempty"`
}

// DecodeOp builds an Operation from its encoded fields.
func DecodeOp(kind OpKind, account string, amount, value int64, cmp Comparator) (Operation, error) {
	switch kind {
	case OpAdd:
		return Add{Target: account, Amount: amount}, nil
	case OpSubtract:
		return Subtract{Target: account, Amount: amount}, nil
	case OpAssign:
		return Assign{Target: account, Value: value}, nil
	case OpCheck:
		if !cmp.Valid() {
			return nil, fmt.Errorf("check on %q: unknown comparator %q", account, cmp)
		}
		return Check{Condition{Target: account, Cmp: cmp, Value: value}}, nil
	default:
		return nil, fmt.Errorf("unknown operation %q", kind)
	}
}

func encodeOp(op Operation) (opRecord, error) {
	switch o := op.(type) {
	case Add:
		return opRecord{Op: OpAdd, Account: o.Target, Amount: o.Amount}, nil
	case Subtract:
		return opRecord{Op: OpSubtract, Account: o.Target, Amount: o.Amount}, nil
	case Assign:
		return opRecord{Op: OpAssign, Account: o.Target, Value: o.Value}, nil
	case Check:
		return opRecord{Op: OpCheck, Account: o.Target, Cmp: o.Cmp, Value: o.Value}, nil
	default:
		return opRecord{}, fmt.Errorf("unsupported operation type: %T", op)
	}
}

type txRecord struct {
	ID             string           `json:"id"`
	Seq            int64            `json:"seq"`
	Accounts       map[string]int64 `json:"accounts"`
	Ops            []opRecord       `json:"ops"`
	Postconditions []Condition      `json:"post,omitempty"`
	Flow           int64            `json:"flow"`
	DependsOn      []string         `json:"after,omitempty"`
}

// MarshalJSON encodes the transaction with tagged operations.
func (t *Transaction) MarshalJSON() ([]byte, error) {
	rec := txRecord{
		ID:             t.ID,
		Seq:            t.Seq,
		Accounts:       t.Accounts,
		Ops:            make([]opRecord, 0, len(t.Ops)),
		Postconditions: t.Postconditions,
		Flow:           t.Flow,
		DependsOn:      t.DependsOn,
	}
	for i, op := range t.Ops {
		r, err := encodeOp(op)
		if err != nil {
			return nil, fmt.Errorf("ops[%d]: %w", i, err)
		}
		rec.Ops = append(rec.Ops, r)
	}
	return json.Marshal(rec)
}

// UnmarshalJSON decodes and validates a transaction.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var rec txRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	spec := TxSpec{
		ID:             rec.ID,
		Seq:            rec.Seq,
		Accounts:       rec.Accounts,
		Postconditions: rec.Postconditions,
		Flow:           rec.Flow,
		DependsOn:      rec.DependsOn,
	}
	for i, r := range rec.Ops {
		op, err := DecodeOp(r.Op, r.Account, r.Amount, r.Value, r.Cmp)
		if err != nil {
			return fmt.Errorf("ops[%d]: %w", i, err)
		}
		spec.Ops = append(spec.Ops, op)
	}
	tx, err := NewTransaction(spec)
	if err != nil {
		return err
	}
	*t = *tx
	return nil
}

// CanonicalForm returns the transaction as a canonical-JSON-ready value.
// Optional fields are always present so the encoding is total.
func (t *Transaction) CanonicalForm() (map[string]any, error) {
	ops := make([]any, 0, len(t.Ops))
	for i, op := range t.Ops {
		r, err := encodeOp(op)
		if err != nil {
			return nil, fmt.Errorf("ops[%d]: %w", i, err)
		}
		rec := map[string]any{"op": string(r.Op), "account": r.Account}
		switch r.Op {
		case OpAdd, OpSubtract:
			rec["amount"] = r.Amount
		case OpAssign:
			rec["value"] = r.Value
		case OpCheck:
			rec["cmp"] = string(r.Cmp)
			rec["value"] = r.Value
		}
		ops = append(ops, rec)
	}
	post := make([]any, 0, len(t.Postconditions))
	for _, c := range t.Postconditions {
		post = append(post, map[string]any{
			"account": c.Target,
			"cmp":     string(c.Cmp),
			"value":   c.Value,
		})
	}
	after := make([]string, len(t.DependsOn))
	copy(after, t.DependsOn)
	return map[string]any{
		"id":       t.ID,
		"seq":      t.Seq,
		"accounts": t.Accounts,
		"ops":      ops,
		"post":     post,
		"flow":     t.Flow,
		"after":    after,
	}, nil
}

// CanonicalState returns a StateMap as a canonical-JSON-ready value.
func CanonicalState(m StateMap) map[string]any {
	out := make(map[string]any, len(m))
	for id, st := range m {
		out[id] = map[string]any{
			"balance": st.Balance,
			"nonce":   st.Nonce,
		}
	}
	return out
}
