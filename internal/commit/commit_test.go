package commit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synchrony/internal/ir"
)

type recordingPersister struct {
	records []*Record
	err     error
}

func (p *recordingPersister) Persist(_ context.Context, rec *Record) error {
	if p.err != nil {
		return p.err
	}
	p.records = append(p.records, rec)
	return nil
}

func TestMachineHappyPath(t *testing.T) {
	m := NewMachine()
	for _, p := range []Phase{Executing, Proving, Validating, Committing, Done} {
		require.NoError(t, m.Advance(p))
	}
	assert.Equal(t, OutcomeCommitted, m.Outcome())
	assert.False(t, m.FellBack())
	assert.Equal(t, []Phase{Analyzing, Executing, Proving, Validating, Committing, Done}, m.History())
}

func TestMachineFallbackReentersExecutingOnce(t *testing.T) {
	m := NewMachine()
	for _, p := range []Phase{Executing, Proving, SerialFallback, Executing, Validating, RollingBack, Done} {
		require.NoError(t, m.Advance(p), "advance to %s", p)
	}
	assert.True(t, m.FellBack())
	assert.Equal(t, OutcomeRolledBack, m.Outcome())
}

func TestMachineRejectsIllegalTransitions(t *testing.T) {
	m := NewMachine()
	assert.Error(t, m.Advance(Committing), "cannot skip to commit")

	require.NoError(t, m.Advance(Executing))
	require.NoError(t, m.Advance(Proving))
	require.NoError(t, m.Advance(SerialFallback))
	require.NoError(t, m.Advance(Executing))
	assert.Error(t, m.Advance(Proving), "PROVING is not entered twice")
	assert.Error(t, m.Advance(SerialFallback), "EXECUTING does not lead to fallback")
}

func TestLedgerSnapshotIsCopy(t *testing.T) {
	l := NewLedger(ir.StatesFromBalances(map[string]int64{"alice": 1000}))
	snap, v := l.Snapshot([]string{"alice", "ghost"})
	snap["alice"] = ir.AccountState{Balance: 1}

	assert.Equal(t, uint64(0), v)
	assert.Len(t, snap, 1)
	st, ok := l.Get("alice")
	require.True(t, ok)
	assert.Equal(t, int64(1000), st.Balance)
}

func TestCommitAppliesWorkingStates(t *testing.T) {
	l := NewLedger(ir.StatesFromBalances(map[string]int64{"alice": 1000, "bob": 500, "other": 7}))
	p := &recordingPersister{}
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager(l, WithPersister(p), WithClock(func() time.Time { return fixed }))

	s := m.Stage(map[string]int64{"alice": 1000, "bob": 500, "new": 40})
	assert.Equal(t, ir.AccountState{Balance: 40}, s.Pre["new"], "unknown account adopted at declared value")

	s.Hold(ir.StateMap{"alice": {Balance: 900, Nonce: 1}, "bob": {Balance: 600, Nonce: 1}, "new": {Balance: 40}})
	rec := &Record{BatchID: "b1"}
	require.NoError(t, m.Commit(context.Background(), s, rec))

	assert.Equal(t, uint64(1), l.Version())
	assert.Equal(t, ir.StateMap{
		"alice": {Balance: 900, Nonce: 1},
		"bob":   {Balance: 600, Nonce: 1},
		"new":   {Balance: 40},
		"other": {Balance: 7},
	}, l.All())

	require.Len(t, p.records, 1)
	assert.Equal(t, uint64(1), p.records[0].Version)
	assert.Equal(t, fixed, p.records[0].CommittedAt)
	assert.Equal(t, int64(1000), p.records[0].Pre["alice"].Balance)
	assert.Equal(t, int64(900), p.records[0].Post["alice"].Balance)

	err := m.Commit(context.Background(), s, rec)
	assert.True(t, IsCommitError(err), "second commit of the same batch fails")
}

func TestCommitPersistFailureLeavesLedger(t *testing.T) {
	l := NewLedger(ir.StatesFromBalances(map[string]int64{"alice": 1000}))
	boom := errors.New("disk full")
	m := NewManager(l, WithPersister(&recordingPersister{err: boom}))

	s := m.Stage(map[string]int64{"alice": 1000})
	s.Hold(ir.StateMap{"alice": {Balance: 1}})
	err := m.Commit(context.Background(), s, &Record{})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsCommitError(err))
	assert.Equal(t, uint64(0), l.Version())
	assert.Equal(t, ir.StatesFromBalances(map[string]int64{"alice": 1000}), l.All())
}

func TestCommitDetectsConcurrentCommit(t *testing.T) {
	l := NewLedger(ir.StatesFromBalances(map[string]int64{"alice": 1000}))
	m := NewManager(l)

	first := m.Stage(map[string]int64{"alice": 1000})
	second := m.Stage(map[string]int64{"alice": 1000})
	first.Hold(ir.StateMap{"alice": {Balance: 900, Nonce: 1}})
	second.Hold(ir.StateMap{"alice": {Balance: 800, Nonce: 1}})

	require.NoError(t, m.Commit(context.Background(), first, nil))
	err := m.Commit(context.Background(), second, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger moved")
	st, _ := l.Get("alice")
	assert.Equal(t, int64(900), st.Balance)
}

func TestRollbackDiscards(t *testing.T) {
	l := NewLedger(ir.StatesFromBalances(map[string]int64{"alice": 1000}))
	m := NewManager(l)

	s := m.Stage(map[string]int64{"alice": 1000, "new": 5})
	s.Hold(ir.StateMap{"alice": {Balance: 0}})
	m.Rollback(s)

	assert.Nil(t, s.working)
	assert.True(t, IsCommitError(m.Commit(context.Background(), s, nil)))
	assert.Equal(t, ir.StatesFromBalances(map[string]int64{"alice": 1000}), l.All())
}

func TestCommitWithoutHold(t *testing.T) {
	m := NewManager(NewLedger(nil))
	err := m.Commit(context.Background(), m.Stage(nil), nil)
	assert.True(t, IsCommitError(err))
}

func TestLedgerLoadRestoresVersion(t *testing.T) {
	l := NewLedger(nil)
	l.Load(ir.StatesFromBalances(map[string]int64{"x": 7}), 12)

	assert.Equal(t, uint64(12), l.Version())
	st, ok := l.Get("x")
	require.True(t, ok)
	assert.Equal(t, int64(7), st.Balance)

	m := NewManager(l)
	s := m.Stage(map[string]int64{"x": 0})
	s.Hold(ir.StatesFromBalances(map[string]int64{"x": 8}))
	rec := &Record{BatchID: "b"}
	require.NoError(t, m.Commit(context.Background(), s, rec))
	assert.Equal(t, uint64(13), rec.Version)
}
