package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/synchrony/internal/ir"
)

// Batch is a compiled batch definition.
type Batch struct {
	Name     string
	Atomic   bool
	Accounts map[string]int64 // pre-batch balances shared by every transaction

	// Transactions in declaration order.
	Transactions []*ir.Transaction

	// Pos maps transaction ids to their source position, for diagnostics.
	Pos map[string]token.Pos
}

// TransactionIDs returns the ids in declaration order.
func (b *Batch) TransactionIDs() []string {
	ids := make([]string, len(b.Transactions))
	for i, tx := range b.Transactions {
		ids[i] = tx.ID
	}
	return ids
}

// CompileFile reads and compiles a single CUE batch file.
func CompileFile(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	return CompileSource(path, data)
}

// CompileSource compiles CUE source text. filename is used in positions.
func CompileSource(filename string, src []byte) (*Batch, error) {
	v := cuecontext.New().CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	bv := v.LookupPath(cue.ParsePath("batch"))
	if !bv.Exists() {
		return nil, &CompileError{Field: "batch", Message: "batch is required", Pos: v.Pos()}
	}
	return CompileBatch(bv)
}

// CompileBatch parses a CUE value into a Batch.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value is the batch struct itself:
//
//	batch: {
//		name:     "payroll"
//		atomic:   false
//		accounts: {alice: 1000, bob: 500}
//		transactions: {
//			t1: {seq: 1, ops: [{op: "subtract", account: "alice", amount: 100}]}
//		}
//	}
//
// A transaction declares its accounts implicitly through the accounts its
// ops and postconditions name; their pre-batch values come from the batch
// accounts block. A transaction may override them with its own accounts
// block. seq defaults to the declaration position, starting at 1.
func CompileBatch(v cue.Value) (*Batch, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	b := &Batch{
		Accounts: map[string]int64{},
		Pos:      map[string]token.Pos{},
	}

	var err error
	if nameVal := v.LookupPath(cue.ParsePath("name")); nameVal.Exists() {
		if b.Name, err = nameVal.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}
	if atomicVal := v.LookupPath(cue.ParsePath("atomic")); atomicVal.Exists() {
		if b.Atomic, err = atomicVal.Bool(); err != nil {
			return nil, formatCUEError(err)
		}
	}
	if b.Accounts, err = parseAccounts(v.LookupPath(cue.ParsePath("accounts"))); err != nil {
		return nil, err
	}

	txsVal := v.LookupPath(cue.ParsePath("transactions"))
	if !txsVal.Exists() {
		return nil, &CompileError{
			Field:   "transactions",
			Message: "at least one transaction is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := txsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		id := iter.Label()
		tx, err := parseTransaction(id, int64(len(b.Transactions)+1), iter.Value(), b.Accounts)
		if err != nil {
			return nil, err
		}
		b.Transactions = append(b.Transactions, tx)
		b.Pos[id] = iter.Value().Pos()
	}
	if len(b.Transactions) == 0 {
		return nil, &CompileError{
			Field:   "transactions",
			Message: "at least one transaction is required",
			Pos:     txsVal.Pos(),
		}
	}
	return b, nil
}

func parseAccounts(v cue.Value) (map[string]int64, error) {
	accounts := map[string]int64{}
	if !v.Exists() {
		return accounts, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		n, err := intValue(iter.Value(), "accounts."+iter.Label())
		if err != nil {
			return nil, err
		}
		accounts[iter.Label()] = n
	}
	return accounts, nil
}

// parseTransaction extracts one transaction. The result is validated by
// ir.NewTransaction; validation failures carry the transaction's position.
func parseTransaction(id string, defaultSeq int64, v cue.Value, batchAccounts map[string]int64) (*ir.Transaction, error) {
	field := "transactions." + id
	spec := ir.TxSpec{ID: id, Seq: defaultSeq}

	var err error
	if seqVal := v.LookupPath(cue.ParsePath("seq")); seqVal.Exists() {
		if spec.Seq, err = intValue(seqVal, field+".seq"); err != nil {
			return nil, err
		}
	}
	if flowVal := v.LookupPath(cue.ParsePath("flow")); flowVal.Exists() {
		if spec.Flow, err = intValue(flowVal, field+".flow"); err != nil {
			return nil, err
		}
	}

	opsVal := v.LookupPath(cue.ParsePath("ops"))
	if opsVal.Exists() {
		list, err := opsVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for i := 0; list.Next(); i++ {
			op, err := parseOp(list.Value(), fmt.Sprintf("%s.ops[%d]", field, i))
			if err != nil {
				return nil, err
			}
			spec.Ops = append(spec.Ops, op)
		}
	}

	postVal := v.LookupPath(cue.ParsePath("post"))
	if postVal.Exists() {
		list, err := postVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for i := 0; list.Next(); i++ {
			c, err := parseCondition(list.Value(), fmt.Sprintf("%s.post[%d]", field, i))
			if err != nil {
				return nil, err
			}
			spec.Postconditions = append(spec.Postconditions, c)
		}
	}

	afterVal := v.LookupPath(cue.ParsePath("after"))
	if afterVal.Exists() {
		list, err := afterVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for list.Next() {
			dep, err := list.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			spec.DependsOn = append(spec.DependsOn, dep)
		}
	}

	spec.Accounts, err = declareAccounts(v, field, spec, batchAccounts)
	if err != nil {
		return nil, err
	}

	tx, err := ir.NewTransaction(spec)
	if err != nil {
		return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return tx, nil
}

// declareAccounts resolves the pre-batch value of every account the
// transaction references. A transaction-level accounts block wins over the
// batch block.
func declareAccounts(v cue.Value, field string, spec ir.TxSpec, batchAccounts map[string]int64) (map[string]int64, error) {
	own, err := parseAccounts(v.LookupPath(cue.ParsePath("accounts")))
	if err != nil {
		return nil, err
	}

	declared := make(map[string]int64, len(own))
	resolve := func(acct string) error {
		if _, ok := declared[acct]; ok {
			return nil
		}
		if n, ok := batchAccounts[acct]; ok {
			declared[acct] = n
			return nil
		}
		return &CompileError{
			Field:   field,
			Message: fmt.Sprintf("account %q has no pre-batch balance in the batch or transaction accounts", acct),
			Pos:     v.Pos(),
		}
	}

	for acct, n := range own {
		declared[acct] = n
	}
	for _, op := range spec.Ops {
		if err := resolve(op.Account()); err != nil {
			return nil, err
		}
	}
	for _, c := range spec.Postconditions {
		if err := resolve(c.Target); err != nil {
			return nil, err
		}
	}
	return declared, nil
}

func parseOp(v cue.Value, field string) (ir.Operation, error) {
	kind, err := stringField(v, "op", field)
	if err != nil {
		return nil, err
	}
	account, err := stringField(v, "account", field)
	if err != nil {
		return nil, err
	}

	var amount, value int64
	var cmp ir.Comparator
	switch ir.OpKind(kind) {
	case ir.OpAdd, ir.OpSubtract:
		if amount, err = intField(v, "amount", field); err != nil {
			return nil, err
		}
	case ir.OpAssign:
		if value, err = intField(v, "value", field); err != nil {
			return nil, err
		}
	case ir.OpCheck:
		if value, err = intField(v, "value", field); err != nil {
			return nil, err
		}
		s, err := stringField(v, "cmp", field)
		if err != nil {
			return nil, err
		}
		cmp = ir.Comparator(s)
	}

	op, err := ir.DecodeOp(ir.OpKind(kind), account, amount, value, cmp)
	if err != nil {
		return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return op, nil
}

func parseCondition(v cue.Value, field string) (ir.Condition, error) {
	account, err := stringField(v, "account", field)
	if err != nil {
		return ir.Condition{}, err
	}
	cmp, err := stringField(v, "cmp", field)
	if err != nil {
		return ir.Condition{}, err
	}
	value, err := intField(v, "value", field)
	if err != nil {
		return ir.Condition{}, err
	}
	c := ir.Condition{Target: account, Cmp: ir.Comparator(cmp), Value: value}
	if !c.Cmp.Valid() {
		return ir.Condition{}, &CompileError{
			Field:   field + ".cmp",
			Message: fmt.Sprintf("unknown comparator %q", cmp),
			Pos:     v.Pos(),
		}
	}
	return c, nil
}

func stringField(v cue.Value, name, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", &CompileError{Field: field + "." + name, Message: name + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func intField(v cue.Value, name, field string) (int64, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return 0, &CompileError{Field: field + "." + name, Message: name + " is required", Pos: v.Pos()}
	}
	return intValue(fv, field+"."+name)
}

// intValue reads an integer. Floats are rejected: balances are fixed-point
// integer units.
func intValue(v cue.Value, field string) (int64, error) {
	switch v.IncompleteKind() {
	case cue.IntKind:
	case cue.FloatKind, cue.NumberKind:
		return 0, &CompileError{
			Field:   field,
			Message: "float values are forbidden - use integer units",
			Pos:     v.Pos(),
		}
	default:
		return 0, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("expected int, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
	n, err := v.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return n, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
