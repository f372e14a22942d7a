package executor

import (
	"sync"

	"github.com/roach88/synchrony/internal/ir"
)

// workingSet is the batch's working state. Workers only read the view of
// the current level; merge is the single writer and runs between levels.
type workingSet struct {
	mu     sync.Mutex
	states ir.StateMap
}

func newWorkingSet(states ir.StateMap) *workingSet {
	return &workingSet{states: states}
}

// view returns the level-start state. It must not be modified until the
// level's merge.
func (w *workingSet) view() ir.StateMap {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.states
}

// merge folds committed private copies into the working state under one
// lock. Copies from the same level touch disjoint accounts, so merge order
// does not matter.
func (w *workingSet) merge(outcomes []outcome) {
	w.mu.Lock()
	defer w.mu.Unlock()

	next := w.states.Clone()
	for _, o := range outcomes {
		if o.fault != nil || o.local == nil {
			continue
		}
		for acct, st := range o.local {
			next[acct] = st
		}
	}
	w.states = next
}

func (w *workingSet) snapshot() ir.StateMap {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.states.Clone()
}
