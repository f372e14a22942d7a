package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synchrony/internal/engine"
)

func TestTrace_LatestBatch(t *testing.T) {
	db := runPayroll(t)

	out, err := execute(t, "trace", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "(seq 1)")
	assert.Contains(t, out, "Timeline:")
	assert.Contains(t, out, "COMMIT")
	assert.Contains(t, out, "  t3 COMMITTED\n")
	assert.Contains(t, out, "alice: 1000 -> 900")
	assert.Contains(t, out, "carol: 300 -> 280")
	assert.Contains(t, out, "Stats: 6 events, 3 commits, 0 rollbacks")
}

func TestTrace_JSON(t *testing.T) {
	db := runPayroll(t)

	out, err := execute(t, "--format", "json", "trace", "--db", db)
	require.NoError(t, err)

	var result TraceResult
	resp := decode(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, result.BatchID)
	assert.Equal(t, int64(1), result.BatchSeq)
	assert.Equal(t, 6, result.Stats.TotalEvents)
	assert.Equal(t, 3, result.Stats.Starts)
	assert.Equal(t, 3, result.Stats.Commits)
	assert.GreaterOrEqual(t, result.Stats.Workers, 1)
	assert.Len(t, result.Transactions, 3)
	assert.Len(t, result.Accounts, 4)
}

func TestTrace_ByBatchAndTx(t *testing.T) {
	db := runPayroll(t)

	out, err := execute(t, "--format", "json", "trace", "--db", db)
	require.NoError(t, err)
	var latest TraceResult
	decode(t, out, &latest)

	out, err = execute(t, "--format", "json", "trace", "--db", db, "--batch", latest.BatchID, "--tx", "t1")
	require.NoError(t, err)

	var result TraceResult
	decode(t, out, &result)
	assert.Equal(t, latest.BatchID, result.BatchID)
	require.Len(t, result.Events, 2)
	for _, ev := range result.Events {
		assert.Equal(t, "t1", ev.TxID)
	}
	assert.Equal(t, 1, result.Stats.Commits)
}

func TestTrace_RolledBackTransaction(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "synchrony.db")
	src := `
batch: {
	accounts: {alice: 10, bob: 0, carol: 100, dave: 0}
	transactions: {
		t1: {ops: [{op: "subtract", account: "alice", amount: 50}, {op: "add", account: "bob", amount: 50}]}
		t2: {ops: [{op: "subtract", account: "carol", amount: 5}, {op: "add", account: "dave", amount: 5}]}
	}
}
`
	batch := writeFile(t, dir, "partial.cue", src)

	_, err := execute(t, "run", "--db", db, batch)
	require.NoError(t, err)

	out, err := execute(t, "--format", "json", "trace", "--db", db)
	require.NoError(t, err)

	var result TraceResult
	decode(t, out, &result)
	assert.Equal(t, 1, result.Stats.Rollbacks)
	for _, tx := range result.Transactions {
		if tx.ID == "t1" {
			assert.Equal(t, string(engine.StatusRolledBack), tx.Status)
			assert.Contains(t, tx.Reason, "insufficient")
		}
	}
}

func TestTrace_NotFound(t *testing.T) {
	db := runPayroll(t)

	out, err := execute(t, "trace", "--db", db, "--batch", "no-such-batch")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}

func TestTrace_EmptyDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")

	_, err := execute(t, "trace", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTrace_Badger(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	batch := writeFile(t, dir, "payroll.cue", payrollBatch)

	_, err := execute(t, "run", "--backend", "badger", "--db", data, batch)
	require.NoError(t, err)

	out, err := execute(t, "--format", "json", "trace", "--backend", "badger", "--db", data)
	require.NoError(t, err)

	var result TraceResult
	decode(t, out, &result)
	assert.Equal(t, int64(1), result.BatchSeq)
	assert.Equal(t, 3, result.Stats.Commits)
	assert.Len(t, result.Transactions, 3)
	require.Len(t, result.Accounts, 4)
	assert.Equal(t, "alice", result.Accounts[0].Account)
	assert.Equal(t, int64(1000), result.Accounts[0].Pre.Balance)
	assert.Equal(t, int64(900), result.Accounts[0].Post.Balance)
}
