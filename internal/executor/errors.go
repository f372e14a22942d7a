package executor

import (
	"errors"
	"fmt"
	"time"
)

// TimeoutError is returned when execution exceeds its time bound.
// No part of the level that was running is merged.
type TimeoutError struct {
	Timeout time.Duration
	Level   int
	Pending []string // transactions of the abandoned level
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("batch execution exceeded %s during level %d (%d transactions pending)",
		e.Timeout, e.Level, len(e.Pending))
}

// IsTimeout checks if an error is a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Fault describes why a transaction rolled back.
type Fault struct {
	TxID   string
	OpIdx  int // -1 for postconditions and hook failures
	Reason string
}

func (f Fault) Error() string {
	if f.OpIdx >= 0 {
		return fmt.Sprintf("transaction %s: op %d: %s", f.TxID, f.OpIdx, f.Reason)
	}
	return fmt.Sprintf("transaction %s: %s", f.TxID, f.Reason)
}
