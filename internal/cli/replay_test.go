package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synchrony/internal/store"
)

func TestReplay_AllMatch(t *testing.T) {
	db := runPayroll(t)

	out, err := execute(t, "replay", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "3 committed, state reproduced")
	assert.Contains(t, out, "✓ All 1 batch(es) replay")
}

func TestReplay_JSON(t *testing.T) {
	db := runPayroll(t)
	batch := writeFile(t, t.TempDir(), "payroll.cue", payrollBatch)
	_, err := execute(t, "run", "--db", db, batch)
	require.NoError(t, err)

	out, err := execute(t, "--format", "json", "replay", "--db", db)
	require.NoError(t, err)

	var report ReplayReport
	resp := decode(t, out, &report)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, report.Total)
	assert.True(t, report.AllMatch)
	for _, b := range report.Batches {
		assert.True(t, b.HashMatch)
		assert.Empty(t, b.Diffs)
	}
}

func TestReplay_SingleBatch(t *testing.T) {
	db := runPayroll(t)

	out, err := execute(t, "--format", "json", "trace", "--db", db)
	require.NoError(t, err)
	var trace TraceResult
	decode(t, out, &trace)

	out, err = execute(t, "--format", "json", "replay", "--db", db, "--batch", trace.BatchID)
	require.NoError(t, err)

	var report ReplayReport
	decode(t, out, &report)
	require.Len(t, report.Batches, 1)
	assert.Equal(t, trace.BatchID, report.Batches[0].BatchID)
}

func TestReplay_Mismatch(t *testing.T) {
	db := runPayroll(t)

	st, err := store.Open(db)
	require.NoError(t, err)
	_, err = st.DB().Exec(`UPDATE batch_accounts SET post_balance = 1000 WHERE account_id = 'alice'`)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(t, "replay", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "alice: stored 1000")
	assert.Contains(t, out, "replayed 900")
	assert.Contains(t, out, "✗ Replay mismatch")
	assert.Contains(t, out, "Error [E_REPLAY_MISMATCH]")
}

func TestReplay_EmptyDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")

	out, err := execute(t, "replay", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No batches found in database.")
}

func TestReplay_BatchNotFound(t *testing.T) {
	db := runPayroll(t)

	_, err := execute(t, "replay", "--db", db, "--batch", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReplay_RequiresSQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "synchrony.yaml", "backend: badger\ndb: "+filepath.Join(dir, "data")+"\n")

	_, err := execute(t, "--config", cfg, "replay")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
