package commit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/synchrony/internal/ir"
)

// Record is what a committed batch hands to durable storage.
type Record struct {
	BatchID      string
	BatchSeq     int64
	BatchHash    string
	Version      uint64 // ledger version after this commit
	Atomic       bool
	Transactions []*ir.Transaction
	Committed    []string          // in commit order
	RolledBack   map[string]string // tx id -> reason
	Pre          ir.StateMap
	Post         ir.StateMap
	Trace        []ir.TraceEvent
	CommittedAt  time.Time
}

// Persister durably records committed batches. Persist must be atomic: on
// error nothing of rec is visible.
type Persister interface {
	Persist(ctx context.Context, rec *Record) error
}

// CommitError reports a failed commit. The ledger is unchanged.
type CommitError struct {
	Reason string
	Err    error
}

func (e *CommitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("commit failed: %s: %v", e.Reason, e.Err)
	}
	return "commit failed: " + e.Reason
}

func (e *CommitError) Unwrap() error { return e.Err }

// IsCommitError checks if an error is a CommitError.
func IsCommitError(err error) bool {
	var ce *CommitError
	return errors.As(err, &ce)
}

// Staged is a batch between Stage and Commit or Rollback.
type Staged struct {
	Pre     ir.StateMap // pre-batch states of every touched account
	Version uint64

	working ir.StateMap
	closed  bool
}

// Hold keeps the validated working states for commit (phase one).
func (s *Staged) Hold(working ir.StateMap) {
	s.working = working.Clone()
}

// Manager applies staged batches to a Ledger.
type Manager struct {
	ledger    *Ledger
	persister Persister
	logger    *slog.Logger
	now       func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithPersister sets the durable hand-off.
func WithPersister(p Persister) ManagerOption {
	return func(m *Manager) { m.persister = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock sets the commit timestamp source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a Manager over ledger.
func NewManager(ledger *Ledger, opts ...ManagerOption) *Manager {
	m := &Manager{ledger: ledger, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ledger returns the managed ledger.
func (m *Manager) Ledger() *Ledger { return m.ledger }

// Stage snapshots the pre-batch states of the declared accounts. Accounts
// the ledger does not know are adopted at their declared value.
func (m *Manager) Stage(declared map[string]int64) *Staged {
	ids := make([]string, 0, len(declared))
	for id := range declared {
		ids = append(ids, id)
	}
	pre, version := m.ledger.Snapshot(ids)
	for id, bal := range declared {
		if _, ok := pre[id]; !ok {
			pre[id] = ir.AccountState{Balance: bal}
		}
	}
	return &Staged{Pre: pre, Version: version}
}

// Commit atomically replaces the authoritative states of the held accounts
// (phase two). It fails if the ledger moved since Stage or if persistence
// fails; in both cases the ledger is left exactly as it was.
func (m *Manager) Commit(ctx context.Context, s *Staged, rec *Record) error {
	if s.closed {
		return &CommitError{Reason: "batch already finished"}
	}
	if s.working == nil {
		return &CommitError{Reason: "nothing held"}
	}

	m.ledger.mu.Lock()
	defer m.ledger.mu.Unlock()

	if m.ledger.version != s.Version {
		return &CommitError{Reason: fmt.Sprintf("ledger moved from version %d to %d since staging", s.Version, m.ledger.version)}
	}

	if rec != nil {
		rec.Version = s.Version + 1
		rec.Pre = s.Pre.Clone()
		rec.Post = s.working.Clone()
		rec.CommittedAt = m.now()
		if m.persister != nil {
			if err := m.persister.Persist(ctx, rec); err != nil {
				return &CommitError{Reason: "persist", Err: err}
			}
		}
	}

	for id, st := range s.working {
		m.ledger.states[id] = st
	}
	m.ledger.version++
	s.closed = true

	m.logger.Debug("batch committed", "version", m.ledger.version, "accounts", len(s.working))
	return nil
}

// Rollback discards the held working states.
func (m *Manager) Rollback(s *Staged) {
	s.working = nil
	s.closed = true
}
