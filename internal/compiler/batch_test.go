package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synchrony/internal/ir"
)

const payrollSrc = `
batch: {
	name:   "payroll"
	atomic: true
	accounts: {alice: 1000, bob: 500, carol: 0}
	transactions: {
		t1: {
			seq:  1
			flow: 0
			ops: [
				{op: "subtract", account: "alice", amount: 100},
				{op: "add", account: "bob", amount: 100},
			]
			post: [{account: "alice", cmp: ">=", value: 0}]
			after: []
		}
		t2: {
			seq:  2
			flow: 25
			ops: [{op: "add", account: "carol", amount: 25}]
			after: ["t1"]
		}
		t3: {
			ops: [
				{op: "check", account: "bob", cmp: ">", value: 10},
				{op: "assign", account: "carol", value: 7},
			]
			accounts: {carol: 3}
		}
	}
}
`

func TestCompileSource_Payroll(t *testing.T) {
	b, err := CompileSource("payroll.cue", []byte(payrollSrc))
	require.NoError(t, err)

	assert.Equal(t, "payroll", b.Name)
	assert.True(t, b.Atomic)
	assert.Equal(t, map[string]int64{"alice": 1000, "bob": 500, "carol": 0}, b.Accounts)
	assert.Equal(t, []string{"t1", "t2", "t3"}, b.TransactionIDs())

	t1 := b.Transactions[0]
	assert.Equal(t, int64(1), t1.Seq)
	assert.Equal(t, map[string]int64{"alice": 1000, "bob": 500}, t1.Accounts)
	assert.Equal(t, []ir.Operation{
		ir.Subtract{Target: "alice", Amount: 100},
		ir.Add{Target: "bob", Amount: 100},
	}, t1.Ops)
	assert.Equal(t, []ir.Condition{{Target: "alice", Cmp: ir.CmpGE, Value: 0}}, t1.Postconditions)
	assert.Empty(t, t1.DependsOn)

	t2 := b.Transactions[1]
	assert.Equal(t, int64(25), t2.Flow)
	assert.Equal(t, []string{"t1"}, t2.DependsOn)

	t3 := b.Transactions[2]
	assert.Equal(t, int64(3), t3.Seq, "seq defaults to declaration position")
	assert.Equal(t, map[string]int64{"bob": 500, "carol": 3}, t3.Accounts, "transaction accounts override batch accounts")
	assert.Equal(t, ir.Check{Condition: ir.Condition{Target: "bob", Cmp: ir.CmpGT, Value: 10}}, t3.Ops[0])
	assert.Equal(t, ir.Assign{Target: "carol", Value: 7}, t3.Ops[1])

	assert.True(t, b.Pos["t2"].IsValid())
	assert.Equal(t, "payroll.cue", b.Pos["t2"].Filename())
}

func TestCompileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.cue")
	require.NoError(t, os.WriteFile(path, []byte(payrollSrc), 0o644))

	b, err := CompileFile(path)
	require.NoError(t, err)
	assert.Len(t, b.Transactions, 3)
}

func TestCompileFile_Missing(t *testing.T) {
	_, err := CompileFile(filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read batch file")
}

func TestCompileSource_Errors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
		msg   string
	}{
		{
			name:  "missing batch",
			src:   `other: {}`,
			field: "batch",
			msg:   "batch is required",
		},
		{
			name:  "no transactions",
			src:   `batch: {name: "x", accounts: {a: 1}}`,
			field: "transactions",
			msg:   "at least one transaction",
		},
		{
			name:  "empty transactions",
			src:   `batch: {transactions: {}}`,
			field: "transactions",
			msg:   "at least one transaction",
		},
		{
			name:  "float balance",
			src:   `batch: {accounts: {a: 1.5}, transactions: {t: {ops: [{op: "add", account: "a", amount: 1}]}}}`,
			field: "accounts.a",
			msg:   "float values are forbidden",
		},
		{
			name:  "unknown account",
			src:   `batch: {accounts: {a: 1}, transactions: {t: {ops: [{op: "add", account: "b", amount: 1}]}}}`,
			field: "transactions.t",
			msg:   `account "b" has no pre-batch balance`,
		},
		{
			name:  "unknown op",
			src:   `batch: {accounts: {a: 1}, transactions: {t: {ops: [{op: "mul", account: "a", amount: 2}]}}}`,
			field: "transactions.t.ops[0]",
			msg:   `unknown operation "mul"`,
		},
		{
			name:  "missing amount",
			src:   `batch: {accounts: {a: 1}, transactions: {t: {ops: [{op: "add", account: "a"}]}}}`,
			field: "transactions.t.ops[0].amount",
			msg:   "amount is required",
		},
		{
			name:  "bad comparator",
			src:   `batch: {accounts: {a: 1}, transactions: {t: {ops: [{op: "add", account: "a", amount: 1}], post: [{account: "a", cmp: "=>", value: 0}]}}}`,
			field: "transactions.t.post[0].cmp",
			msg:   `unknown comparator "=>"`,
		},
		{
			name:  "negative amount",
			src:   `batch: {accounts: {a: 1}, transactions: {t: {ops: [{op: "subtract", account: "a", amount: -1}]}}}`,
			field: "transactions.t",
			msg:   "negative amount",
		},
		{
			name:  "self dependency",
			src:   `batch: {accounts: {a: 1}, transactions: {t: {ops: [{op: "add", account: "a", amount: 1}], after: ["t"]}}}`,
			field: "transactions.t",
			msg:   "depends on itself",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileSource("bad.cue", []byte(tt.src))
			require.Error(t, err)

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
			assert.Contains(t, ce.Message, tt.msg)
		})
	}
}

func TestCompileSource_SyntaxErrorHasPosition(t *testing.T) {
	_, err := CompileSource("broken.cue", []byte("batch: {\n\tname: \n"))
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "cue", ce.Field)
	assert.True(t, ce.Pos.IsValid())
	assert.Contains(t, ce.Error(), "broken.cue:")
}

func TestCompileSource_IncompleteValue(t *testing.T) {
	_, err := CompileSource("inc.cue", []byte(`batch: {accounts: {a: int}, transactions: {t: {ops: [{op: "add", account: "a", amount: 1}]}}}`))
	require.Error(t, err)
}

func TestCompileError_Format(t *testing.T) {
	err := &CompileError{Field: "transactions.t1", Message: "boom"}
	assert.Equal(t, "transactions.t1: boom", err.Error())
}
