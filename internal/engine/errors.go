package engine

import (
	"errors"
	"fmt"
)

// ErrorType classifies a batch failure or warning.
type ErrorType string

const (
	// ErrCycleDetected is a warning: a dependency cycle forced serial
	// scheduling.
	ErrCycleDetected ErrorType = "CYCLE_DETECTED"

	// ErrProofFailed means the parallel trace could not be proven
	// linearizable. It is a warning when the serial re-execution succeeds.
	ErrProofFailed ErrorType = "LINEARIZABILITY_PROOF_FAILED"

	// ErrConservation means the batch created or destroyed value.
	ErrConservation ErrorType = "CONSERVATION_VIOLATION"

	// ErrTimeout means execution exceeded the batch timeout.
	ErrTimeout ErrorType = "BATCH_TIMEOUT"

	// ErrCancelled means the caller's context ended during execution.
	ErrCancelled ErrorType = "BATCH_CANCELLED"

	// ErrTransactionFault means a transaction faulted inside an atomic batch.
	ErrTransactionFault ErrorType = "TRANSACTION_FAULT"

	// ErrInvalidBatch means the batch was rejected before execution.
	ErrInvalidBatch ErrorType = "INVALID_BATCH"

	// ErrCommitFailed means the ledger refused the commit.
	ErrCommitFailed ErrorType = "COMMIT_FAILED"

	// ErrInternal means the processor recovered from a panic.
	ErrInternal ErrorType = "INTERNAL_ERROR"
)

// Fatal reports whether the type always fails a batch.
func (t ErrorType) Fatal() bool {
	return t != ErrCycleDetected && t != ErrProofFailed
}

// BatchError is the classified form of every batch failure or warning.
type BatchError struct {
	Type    ErrorType
	Message string

	// Details carries diagnostic fields such as the conservation delta
	// or the offending transaction ids.
	Details map[string]string

	Err error
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *BatchError) Unwrap() error { return e.Err }

// IsBatchError reports whether err is a BatchError of type t.
// Uses errors.As to handle wrapped errors.
func IsBatchError(err error, t ErrorType) bool {
	var be *BatchError
	if errors.As(err, &be) {
		return be.Type == t
	}
	return false
}

func newBatchError(t ErrorType, err error, details map[string]string) *BatchError {
	return &BatchError{Type: t, Message: err.Error(), Details: details, Err: err}
}

func invalidBatch(format string, args ...any) *BatchError {
	return &BatchError{Type: ErrInvalidBatch, Message: fmt.Sprintf(format, args...)}
}
