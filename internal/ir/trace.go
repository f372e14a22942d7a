package ir

import (
	"errors"
	"sync"
	"time"
)

// EventKind classifies an execution trace event.
type EventKind string

const (
	EventStart    EventKind = "START"
	EventCommit   EventKind = "COMMIT"
	EventRollback EventKind = "ROLLBACK"
)

// TraceEvent is one entry in an execution trace.
type TraceEvent struct {
	Seq       int64     `json:"seq"` // Append position, starting at 1
	Kind      EventKind `json:"kind"`
	TxID      string    `json:"tx_id"`
	Worker    int       `json:"worker"`
	Level     int       `json:"level"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"` // ROLLBACK only
}

// ErrTraceSealed is returned by Append after Seal.
var ErrTraceSealed = errors.New("trace is sealed")

// Trace is an append-only, write-once sequence of events.
//
// Append is safe for concurrent use; it is the only contended operation
// during parallel execution and holds the lock only while stamping and
// appending one event.
type Trace struct {
	mu     sync.Mutex
	events []TraceEvent
	sealed bool
	now    func() time.Time
}

// NewTrace creates an empty trace stamped with wall-clock time.
func NewTrace() *Trace {
	return &Trace{now: time.Now}
}

// NewTraceWithClock creates an empty trace using now for timestamps.
func NewTraceWithClock(now func() time.Time) *Trace {
	if now == nil {
		now = time.Now
	}
	return &Trace{now: now}
}

// Append records an event. The timestamp is taken inside the critical
// section so event order and timestamp order agree.
func (t *Trace) Append(kind EventKind, txID string, worker, level int, reason string) (TraceEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sealed {
		return TraceEvent{}, ErrTraceSealed
	}
	ev := TraceEvent{
		Seq:       int64(len(t.events) + 1),
		Kind:      kind,
		TxID:      txID,
		Worker:    worker,
		Level:     level,
		Timestamp: t.now(),
		Reason:    reason,
	}
	t.events = append(t.events, ev)
	return ev, nil
}

// Seal makes the trace read-only. Sealing twice is a no-op.
func (t *Trace) Seal() {
	t.mu.Lock()
	t.sealed = true
	t.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (t *Trace) Sealed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sealed
}

// Events returns a copy of the recorded events in append order.
func (t *Trace) Events() []TraceEvent {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TraceEvent(nil), t.events...)
}

// Len returns the number of recorded events.
func (t *Trace) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

// Workers returns the distinct worker ids that appear in events.
func Workers(events []TraceEvent) map[int]bool {
	ids := make(map[int]bool)
	for _, ev := range events {
		ids[ev.Worker] = true
	}
	return ids
}

// FindEvent returns the first event of kind for txID.
func FindEvent(events []TraceEvent, kind EventKind, txID string) (TraceEvent, bool) {
	for _, ev := range events {
		if ev.Kind == kind && ev.TxID == txID {
			return ev, true
		}
	}
	return TraceEvent{}, false
}
