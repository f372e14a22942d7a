package ir

import "fmt"

// OpKind names an operation variant in encoded form.
type OpKind string

const (
	OpAdd      OpKind = "add"
	OpSubtract OpKind = "subtract"
	OpAssign   OpKind = "assign"
	OpCheck    OpKind = "check"
)

// Operation is one primitive step of a transaction.
//
// This is a sealed interface - only Add, Subtract, Assign and Check implement
// it. The marker method prevents external implementations so executors and
// the prover can switch exhaustively over the variants.
type Operation interface {
	opNode() // Marker method - seals interface to this package

	// Kind returns the encoded variant name.
	Kind() OpKind

	// Account returns the account the operation touches.
	Account() string

	// Mutates reports whether the operation writes its account.
	Mutates() bool
}

// Add increases Target's balance by Amount.
type Add struct {
	Target string `json:"account"`
	Amount int64  `json:"amount"`
}

func (Add) opNode() {}
func (Add) Kind() OpKind { return OpAdd }
func (o Add) Account() string { return o.Target }
func (Add) Mutates() bool { return true }
func (o Add) String() string { return fmt.Sprintf("add(%s, %d)", o.Target, o.Amount) }

// Subtract decreases Target's balance by Amount.
type Subtract struct {
	Target string `json:"account"`
	Amount int64  `json:"amount"`
}

func (Subtract) opNode() {}
func (Subtract) Kind() OpKind { return OpSubtract }
func (o Subtract) Account() string { return o.Target }
func (Subtract) Mutates() bool { return true }
func (o Subtract) String() string { return fmt.Sprintf("subtract(%s, %d)", o.Target, o.Amount) }

// Assign sets Target's balance to Value.
type Assign struct {
	Target string `json:"account"`
	Value  int64  `json:"value"`
}

func (Assign) opNode() {}
func (Assign) Kind() OpKind { return OpAssign }
func (o Assign) Account() string { return o.Target }
func (Assign) Mutates() bool { return true }
func (o Assign) String() string { return fmt.Sprintf("assign(%s, %d)", o.Target, o.Value) }

// Check is a guard evaluated against the balance visible to the transaction
// at that point of its operation sequence. A false check faults the
// transaction.
type Check struct {
	Condition
}

func (Check) opNode() {}
func (Check) Kind() OpKind { return OpCheck }
func (o Check) Account() string { return o.Target }
func (Check) Mutates() bool { return false }
func (o Check) String() string { return "check(" + o.Condition.String() + ")" }

// Apply executes a mutating operation against balance and returns the new
// balance. Check operations return the balance unchanged, or an error when the
// condition does not hold.
//
// Faults:
//   - arithmetic overflow
//   - a resulting balance below zero
//   - a failed check
func Apply(op Operation, balance int64) (int64, error) {
	switch o := op.(type) {
	case Add:
		next := balance + o.Amount
		if next < balance {
			return balance, fmt.Errorf("%s: balance overflow", o)
		}
		return next, nil
	case Subtract:
		next := balance - o.Amount
		if next > balance {
			return balance, fmt.Errorf("%s: balance underflow", o)
		}
		if next < 0 {
			return balance, fmt.Errorf("%s: insufficient balance %d", o, balance)
		}
		return next, nil
	case Assign:
		return o.Value, nil
	case Check:
		if !o.Holds(balance) {
			return balance, fmt.Errorf("%s failed: balance is %d", o, balance)
		}
		return balance, nil
	default:
		return balance, fmt.Errorf("unsupported operation type: %T", op)
	}
}
