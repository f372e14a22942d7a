package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxTransactions bounds batch size unless WithMaxTransactions
// overrides it.
const DefaultMaxTransactions = 10000

// SizeExceededError is returned when a batch holds more transactions than
// the configured limit. The batch is rejected before any analysis.
type SizeExceededError struct {
	Count int // transactions submitted
	Limit int // maximum allowed
}

// Error implements the error interface.
func (e *SizeExceededError) Error() string {
	return fmt.Sprintf("batch has %d transactions, limit is %d", e.Count, e.Limit)
}

// IsSizeExceeded checks if an error is a SizeExceededError.
func IsSizeExceeded(err error) bool {
	var se *SizeExceededError
	return errors.As(err, &se)
}

// checkSize enforces limit. A limit below 1 disables the check.
func checkSize(count, limit int) error {
	if limit > 0 && count > limit {
		return &SizeExceededError{Count: count, Limit: limit}
	}
	return nil
}
