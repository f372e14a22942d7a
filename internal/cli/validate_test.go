package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synchrony/internal/compiler"
)

func TestValidate_Valid(t *testing.T) {
	batch := writeFile(t, t.TempDir(), "payroll.cue", payrollBatch)

	out, err := execute(t, "validate", batch)
	require.NoError(t, err)
	assert.Contains(t, out, "valid (3 transactions)")
}

func TestValidate_CycleIsWarning(t *testing.T) {
	batch := writeFile(t, t.TempDir(), "cycle.cue", cycleBatch)

	out, err := execute(t, "validate", batch)
	require.NoError(t, err)
	assert.Contains(t, out, "valid (2 transactions)")
	assert.Contains(t, out, "warning: dependency cycle: a -> b -> a")
}

func TestValidate_WarningsOnly(t *testing.T) {
	src := `
batch: {
	accounts: {alice: 10, idle: 5}
	transactions: {
		t1: {flow: 1, after: ["ghost"], ops: [{op: "add", account: "alice", amount: 1}]}
	}
}
`
	batch := writeFile(t, t.TempDir(), "warn.cue", src)

	out, err := execute(t, "--format", "json", "validate", batch)
	require.NoError(t, err)

	var result ValidationResult
	resp := decode(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	codes := []string{}
	for _, w := range result.Warnings {
		codes = append(codes, w.Code)
	}
	assert.ElementsMatch(t, []string{compiler.ErrUnknownDependency, compiler.ErrUnusedAccount}, codes)
}

func TestValidate_ErrorsExitOne(t *testing.T) {
	batch := writeFile(t, t.TempDir(), "flow.cue", flowMismatchBatch)

	out, err := execute(t, "validate", batch)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "validation failed")
	assert.Contains(t, out, "error E104 line")
}

func TestValidate_ErrorsJSON(t *testing.T) {
	batch := writeFile(t, t.TempDir(), "flow.cue", flowMismatchBatch)

	out, err := execute(t, "--format", "json", "validate", batch)
	require.Error(t, err)

	var result ValidationResult
	resp := decode(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, compiler.ErrFlowMismatch, resp.Error.Code)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "transactions.t1.flow", result.Errors[0].Field)
}

func TestValidate_LoadErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		file string
		code string
	}{
		{"syntax", writeFile(t, dir, "syntax.cue", "batch: {accounts: {a: 1}\n"), ErrCodeBuildFailed},
		{"no batch", writeFile(t, dir, "empty.cue", "other: 1\n"), ErrCodeLoadFailed},
		{"no transactions", writeFile(t, dir, "notx.cue", "batch: {accounts: {a: 1}}\n"), compiler.ErrNoTransactions},
		{"float", writeFile(t, dir, "float.cue", "batch: {accounts: {a: 1.5}, transactions: {t: {ops: [{op: \"add\", account: \"a\", amount: 1}]}}}\n"), ErrCodeAccounts},
		{"bad op", writeFile(t, dir, "op.cue", "batch: {accounts: {a: 1}, transactions: {t: {ops: [{op: \"divide\", account: \"a\", amount: 1}]}}}\n"), compiler.ErrInvalidTransaction},
		{"missing", dir + "/nope.cue", ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "--format", "json", "validate", tt.file)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			resp := decode(t, out, nil)
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestMapFieldToErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeBuildFailed, MapFieldToErrorCode("cue"))
	assert.Equal(t, ErrCodeLoadFailed, MapFieldToErrorCode("batch"))
	assert.Equal(t, compiler.ErrNoTransactions, MapFieldToErrorCode("transactions"))
	assert.Equal(t, compiler.ErrInvalidTransaction, MapFieldToErrorCode("transactions.t1.ops[0].op"))
	assert.Equal(t, ErrCodeAccounts, MapFieldToErrorCode("accounts.alice"))
	assert.Equal(t, ErrCodeGeneric, MapFieldToErrorCode("other"))
}
