package commit

import (
	"sync"

	"github.com/roach88/synchrony/internal/ir"
)

// Ledger holds the authoritative account states.
type Ledger struct {
	mu      sync.RWMutex
	states  ir.StateMap
	version uint64
}

// NewLedger creates a ledger seeded with initial, which is copied.
func NewLedger(initial ir.StateMap) *Ledger {
	return &Ledger{states: initial.Clone()}
}

// Version returns the number of commits applied.
func (l *Ledger) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Get returns one account.
func (l *Ledger) Get(id string) (ir.AccountState, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st, ok := l.states[id]
	return st, ok
}

// All returns a copy of every account.
func (l *Ledger) All() ir.StateMap {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.states.Clone()
}

// Snapshot copies the named accounts and returns them with the current
// version. Accounts the ledger does not know are omitted.
func (l *Ledger) Snapshot(ids []string) (ir.StateMap, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.states.Select(ids), l.version
}

// Load replaces the ledger contents and version, used when restoring
// from storage.
func (l *Ledger) Load(states ir.StateMap, version uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = states.Clone()
	l.version = version
}
