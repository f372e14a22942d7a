package commit

import (
	"fmt"
	"slices"
)

// Phase is a step of the per-batch state machine.
type Phase string

const (
	Analyzing      Phase = "ANALYZING"
	Executing      Phase = "EXECUTING"
	Proving        Phase = "PROVING"
	SerialFallback Phase = "SERIAL_FALLBACK"
	Validating     Phase = "VALIDATING"
	Committing     Phase = "COMMITTING"
	RollingBack    Phase = "ROLLING_BACK"
	Done           Phase = "DONE"
)

var transitions = map[Phase][]Phase{
	Analyzing:      {Executing, RollingBack},
	Executing:      {Proving, Validating, RollingBack},
	Proving:        {Validating, SerialFallback, RollingBack},
	SerialFallback: {Executing},
	Validating:     {Committing, RollingBack},
	Committing:     {Done, RollingBack},
	RollingBack:    {Done},
}

// Outcome is the terminal result of a batch.
type Outcome string

const (
	OutcomePending    Outcome = ""
	OutcomeCommitted  Outcome = "COMMITTED"
	OutcomeRolledBack Outcome = "ROLLED_BACK"
)

// Machine tracks one batch through its phases. No phase is entered twice,
// except EXECUTING, which is re-entered once after SERIAL_FALLBACK.
// Not safe for concurrent use; a batch is driven by one goroutine.
type Machine struct {
	history []Phase
	outcome Outcome
}

// NewMachine starts a batch in ANALYZING.
func NewMachine() *Machine {
	return &Machine{history: []Phase{Analyzing}}
}

// Current returns the current phase.
func (m *Machine) Current() Phase {
	return m.history[len(m.history)-1]
}

// History returns every phase entered, in order.
func (m *Machine) History() []Phase {
	return slices.Clone(m.history)
}

// Outcome returns the terminal outcome, or OutcomePending before DONE.
func (m *Machine) Outcome() Outcome { return m.outcome }

// FellBack reports whether SERIAL_FALLBACK was entered.
func (m *Machine) FellBack() bool {
	return slices.Contains(m.history, SerialFallback)
}

// Advance moves to next if the transition is legal.
func (m *Machine) Advance(next Phase) error {
	cur := m.Current()
	if !slices.Contains(transitions[cur], next) {
		return fmt.Errorf("illegal phase transition %s -> %s", cur, next)
	}
	if slices.Contains(m.history, next) && !(next == Executing && cur == SerialFallback) {
		return fmt.Errorf("phase %s already entered", next)
	}
	if next == Done {
		if cur == Committing {
			m.outcome = OutcomeCommitted
		} else {
			m.outcome = OutcomeRolledBack
		}
	}
	m.history = append(m.history, next)
	return nil
}
