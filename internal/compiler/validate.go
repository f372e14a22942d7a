package compiler

import (
	"fmt"

	"github.com/roach88/synchrony/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrNoTransactions     = "E101" // batch has no transactions
	ErrUnknownDependency  = "E102" // after names an id outside the batch
	ErrDuplicateSeq       = "E103" // two transactions share seq (ties break by id)
	ErrFlowMismatch       = "E104" // declared flow disagrees with the operations
	ErrNegativeBalance    = "E105" // batch account starts below zero
	ErrUnusedAccount      = "E106" // batch account no transaction references
	ErrInvalidTransaction = "E107" // transaction fails structural validation
)

// Severity of a ValidationError.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ValidationError represents a batch validation finding.
type ValidationError struct {
	Field    string `json:"field"`
	Message  string `json:"message"`
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Line     int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// HasErrors reports whether any finding is an error rather than a warning.
func HasErrors(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks a compiled batch for problems the engine would only
// discover at run time. Returns all findings (does not fail-fast).
func Validate(b *Batch) []ValidationError {
	var errs []ValidationError
	add := func(id, field, code, severity, format string, args ...any) {
		e := ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code, Severity: severity}
		if pos, ok := b.Pos[id]; ok && pos.IsValid() {
			e.Line = pos.Line()
		}
		errs = append(errs, e)
	}

	if len(b.Transactions) == 0 {
		add("", "transactions", ErrNoTransactions, SeverityError, "batch has no transactions")
		return errs
	}

	for _, acct := range ir.SortedKeys(b.Accounts) {
		if b.Accounts[acct] < 0 {
			add("", "accounts."+acct, ErrNegativeBalance, SeverityError, "balance %d is negative", b.Accounts[acct])
		}
	}

	known := make(map[string]bool, len(b.Transactions))
	seqs := make(map[int64]string, len(b.Transactions))
	referenced := make(map[string]bool)
	for _, tx := range b.Transactions {
		known[tx.ID] = true
		for acct := range tx.Accounts {
			referenced[acct] = true
		}
	}

	for _, tx := range b.Transactions {
		field := "transactions." + tx.ID

		if err := tx.Validate(); err != nil {
			add(tx.ID, field, ErrInvalidTransaction, SeverityError, "%v", err)
		}
		if other, ok := seqs[tx.Seq]; ok {
			add(tx.ID, field+".seq", ErrDuplicateSeq, SeverityWarning,
				"seq %d is shared with %s; precedence falls back to id order", tx.Seq, other)
		} else {
			seqs[tx.Seq] = tx.ID
		}
		for _, dep := range tx.DependsOn {
			if !known[dep] {
				add(tx.ID, field+".after", ErrUnknownDependency, SeverityWarning,
					"dependency %q is not in the batch and will be ignored", dep)
			}
		}
		if net, ok := staticNet(tx); ok && net != tx.Flow {
			add(tx.ID, field+".flow", ErrFlowMismatch, SeverityError,
				"declared flow %d but operations move %d; the batch would fail conservation", tx.Flow, net)
		}
	}

	for _, acct := range ir.SortedKeys(b.Accounts) {
		if !referenced[acct] {
			add("", "accounts."+acct, ErrUnusedAccount, SeverityWarning, "no transaction references %q", acct)
		}
	}
	return errs
}

// staticNet returns the net balance change of a committed transaction when
// it can be known without executing it (no Assign operations).
func staticNet(tx *ir.Transaction) (int64, bool) {
	var net int64
	for _, op := range tx.Ops {
		switch o := op.(type) {
		case ir.Add:
			net += o.Amount
		case ir.Subtract:
			net -= o.Amount
		case ir.Assign:
			return 0, false
		}
	}
	return net, true
}
