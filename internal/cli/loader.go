package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/synchrony/internal/compiler"
)

// LoadError represents an error that occurred while loading a batch file.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Line returns the source line of the error, or 0.
func (e *LoadError) Line() int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// LoadBatch checks that path is a CUE file and compiles it.
// Errors are *LoadError values carrying an error code.
func LoadBatch(path string) (*compiler.Batch, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("batch file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing batch file: %v", err)}
	}
	if info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("is a directory: %s", path)}
	}
	if filepath.Ext(path) != ".cue" {
		return nil, &LoadError{Code: ErrCodeNotCUE, Message: fmt.Sprintf("not a CUE file: %s", path)}
	}

	b, err := compiler.CompileFile(path)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return b, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// Error code constants - unified across all CLI commands.
// Batch findings reuse the compiler's E1xx validation codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNotCUE      = "E003" // Not a .cue file
	ErrCodeLoadFailed  = "E004" // No batch value in the file
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeStore       = "E008" // Store could not be opened or read
	ErrCodeGraph       = "E009" // Graph rendering failed
	ErrCodeAccounts    = "E010" // Malformed accounts block
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "cue":
		return ErrCodeBuildFailed
	case field == "batch":
		return ErrCodeLoadFailed
	case field == "transactions":
		return compiler.ErrNoTransactions
	case strings.HasPrefix(field, "transactions."):
		return compiler.ErrInvalidTransaction
	case strings.HasPrefix(field, "accounts"):
		return ErrCodeAccounts
	default:
		return ErrCodeGeneric
	}
}
