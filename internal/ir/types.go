package ir

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Transaction is one proposed, individually verified state change.
//
// Transactions are immutable once built by NewTransaction: the constructor
// copies every slice and map it is given, and no method mutates the receiver.
type Transaction struct {
	ID  string `json:"id"`
	Seq int64  `json:"seq"` // Submission order; ties broken by ID

	// Accounts maps every account the transaction may touch to its
	// pre-batch balance as seen by the upstream verifier.
	Accounts map[string]int64 `json:"accounts"`

	Ops            []Operation `json:"ops"`
	Postconditions []Condition `json:"post,omitempty"`

	// Flow is the declared net external value the transaction moves into (+)
	// or out of (-) the batch's accounts. Transfers declare 0.
	Flow int64 `json:"flow"`

	// DependsOn lists transaction ids that must commit before this one.
	DependsOn []string `json:"after,omitempty"`
}

// TxSpec holds the inputs for NewTransaction.
type TxSpec struct {
	ID             string
	Seq            int64
	Accounts       map[string]int64
	Ops            []Operation
	Postconditions []Condition
	Flow           int64
	DependsOn      []string
}

// NewTransaction validates spec and returns an immutable Transaction.
func NewTransaction(spec TxSpec) (*Transaction, error) {
	tx := &Transaction{
		ID:             spec.ID,
		Seq:            spec.Seq,
		Accounts:       make(map[string]int64, len(spec.Accounts)),
		Ops:            append([]Operation(nil), spec.Ops...),
		Postconditions: append([]Condition(nil), spec.Postconditions...),
		Flow:           spec.Flow,
		DependsOn:      append([]string(nil), spec.DependsOn...),
	}
	for k, v := range spec.Accounts {
		tx.Accounts[k] = v
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

// MustTransaction is like NewTransaction but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustTransaction(spec TxSpec) *Transaction {
	tx, err := NewTransaction(spec)
	if err != nil {
		panic(err)
	}
	return tx
}

// ValidationError reports a malformed transaction.
type ValidationError struct {
	TxID    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.TxID == "" {
		return fmt.Sprintf("invalid transaction: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid transaction %q: %s: %s", e.TxID, e.Field, e.Message)
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks the structural rules every transaction must satisfy.
func (t *Transaction) Validate() error {
	fail := func(field, format string, args ...any) error {
		return &ValidationError{TxID: t.ID, Field: field, Message: fmt.Sprintf(format, args...)}
	}

	if t.ID == "" {
		return fail("id", "must not be empty")
	}
	if t.Seq < 0 {
		return fail("seq", "must be non-negative, got %d", t.Seq)
	}
	if len(t.Ops) == 0 && len(t.Postconditions) == 0 {
		return fail("ops", "transaction has no operations and no postconditions")
	}
	for acct, bal := range t.Accounts {
		if err := ValidateAccountID(acct); err != nil {
			return fail("accounts", "%v", err)
		}
		if bal < 0 {
			return fail("accounts", "account %q has negative balance %d", acct, bal)
		}
	}
	for i, op := range t.Ops {
		if err := t.validateOp(op); err != nil {
			return fail(fmt.Sprintf("ops[%d]", i), "%v", err)
		}
	}
	for i, c := range t.Postconditions {
		if err := t.validateCondition(c); err != nil {
			return fail(fmt.Sprintf("post[%d]", i), "%v", err)
		}
	}
	seen := make(map[string]bool, len(t.DependsOn))
	for _, dep := range t.DependsOn {
		switch {
		case dep == "":
			return fail("after", "empty dependency id")
		case dep == t.ID:
			return fail("after", "transaction depends on itself")
		case seen[dep]:
			return fail("after", "duplicate dependency %q", dep)
		}
		seen[dep] = true
	}
	return nil
}

func (t *Transaction) validateOp(op Operation) error {
	switch o := op.(type) {
	case nil:
		return errors.New("nil operation")
	case Add:
		if o.Amount < 0 {
			return fmt.Errorf("negative amount %d", o.Amount)
		}
	case Subtract:
		if o.Amount < 0 {
			return fmt.Errorf("negative amount %d", o.Amount)
		}
	case Assign:
		if o.Value < 0 {
			return fmt.Errorf("negative value %d", o.Value)
		}
	case Check:
		return t.validateCondition(o.Condition)
	default:
		return fmt.Errorf("unsupported operation type: %T", op)
	}
	return t.requireDeclared(op.Account())
}

func (t *Transaction) validateCondition(c Condition) error {
	if !c.Cmp.Valid() {
		return fmt.Errorf("unknown comparator %q", c.Cmp)
	}
	return t.requireDeclared(c.Target)
}

func (t *Transaction) requireDeclared(acct string) error {
	if _, ok := t.Accounts[acct]; !ok {
		return fmt.Errorf("account %q is not declared", acct)
	}
	return nil
}

// ValidateAccountID rejects identifiers that would corrupt encoded keys.
func ValidateAccountID(id string) error {
	if id == "" {
		return errors.New("account id must not be empty")
	}
	if strings.ContainsAny(id, `|\`) {
		return fmt.Errorf("account id %q contains reserved character", id)
	}
	return nil
}

// AccountIDs returns the declared accounts in sorted order.
func (t *Transaction) AccountIDs() []string {
	ids := make([]string, 0, len(t.Accounts))
	for id := range t.Accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Precedes reports whether t is ordered before other: lower Seq first,
// equal Seq ordered by ID.
func (t *Transaction) Precedes(other *Transaction) bool {
	if t.Seq != other.Seq {
		return t.Seq < other.Seq
	}
	return t.ID < other.ID
}

// SortByPrecedence sorts txs in place by (Seq, ID).
func SortByPrecedence(txs []*Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Precedes(txs[j])
	})
}

// Comparator is a relational operator in a condition.
type Comparator string

const (
	CmpGE Comparator = ">="
	CmpGT Comparator = ">"
	CmpLE Comparator = "<="
	CmpLT Comparator = "<"
	CmpEQ Comparator = "=="
	CmpNE Comparator = "!="
)

// ValidComparators lists accepted comparators.
var ValidComparators = map[Comparator]bool{
	CmpGE: true,
	CmpGT: true,
	CmpLE: true,
	CmpLT: true,
	CmpEQ: true,
	CmpNE: true,
}

// ParseComparator converts the textual form to a Comparator.
func ParseComparator(s string) (Comparator, error) {
	c := Comparator(strings.TrimSpace(s))
	if !c.Valid() {
		return "", fmt.Errorf("unknown comparator %q", s)
	}
	return c, nil
}

// Valid reports whether c is a known comparator.
func (c Comparator) Valid() bool {
	return ValidComparators[c]
}

// Compare evaluates lhs c rhs.
func (c Comparator) Compare(lhs, rhs int64) bool {
	switch c {
	case CmpGE:
		return lhs >= rhs
	case CmpGT:
		return lhs > rhs
	case CmpLE:
		return lhs <= rhs
	case CmpLT:
		return lhs < rhs
	case CmpEQ:
		return lhs == rhs
	case CmpNE:
		return lhs != rhs
	}
	return false
}

// Negate returns the comparator whose result is the opposite of c.
func (c Comparator) Negate() Comparator {
	switch c {
	case CmpGE:
		return CmpLT
	case CmpGT:
		return CmpLE
	case CmpLE:
		return CmpGT
	case CmpLT:
		return CmpGE
	case CmpEQ:
		return CmpNE
	case CmpNE:
		return CmpEQ
	}
	return c
}

// Condition is a boolean guard on one account balance.
type Condition struct {
	Target string     `json:"account"`
	Cmp    Comparator `json:"cmp"`
	Value  int64      `json:"value"`
}

// Holds evaluates the condition against balance.
func (c Condition) Holds(balance int64) bool {
	return c.Cmp.Compare(balance, c.Value)
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %d", c.Target, c.Cmp, c.Value)
}
