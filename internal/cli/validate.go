package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/synchrony/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	File         string                     `json:"file"`
	Batch        string                     `json:"batch,omitempty"`
	Valid        bool                       `json:"valid"`
	Transactions int                        `json:"transactions"`
	Errors       []compiler.ValidationError `json:"errors,omitempty"`
	Warnings     []compiler.ValidationError `json:"warnings,omitempty"`
	Cycles       []compiler.CycleWarning    `json:"cycles,omitempty"`
}

func newValidationResult(path string, b *compiler.Batch, findings []compiler.ValidationError, cycles []compiler.CycleWarning) ValidationResult {
	r := ValidationResult{
		File:         path,
		Batch:        b.Name,
		Valid:        !compiler.HasErrors(findings),
		Transactions: len(b.Transactions),
		Cycles:       cycles,
	}
	for _, f := range findings {
		if f.Severity == compiler.SeverityError {
			r.Errors = append(r.Errors, f)
		} else {
			r.Warnings = append(r.Warnings, f)
		}
	}
	return r
}

// Text renders the result for humans.
func (r ValidationResult) Text() string {
	var sb strings.Builder
	if r.Valid {
		fmt.Fprintf(&sb, "✓ %s valid (%d transactions)\n", r.File, r.Transactions)
	} else {
		fmt.Fprintf(&sb, "✗ %s: validation failed\n", r.File)
	}
	for _, e := range r.Errors {
		writeFinding(&sb, "error", e)
	}
	for _, w := range r.Warnings {
		writeFinding(&sb, "warning", w)
	}
	for _, c := range r.Cycles {
		fmt.Fprintf(&sb, "  warning: %s\n", c.Message)
	}
	return sb.String()
}

func writeFinding(sb *strings.Builder, kind string, e compiler.ValidationError) {
	if e.Line > 0 {
		fmt.Fprintf(sb, "  %s %s line %d: %s: %s\n", kind, e.Code, e.Line, e.Field, e.Message)
		return
	}
	fmt.Fprintf(sb, "  %s %s: %s: %s\n", kind, e.Code, e.Field, e.Message)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <batch.cue>",
		Short: "Check a batch file without running it",
		Long: `Compile a CUE batch file and report problems the engine would only
find at run time: unknown dependencies, flows that disagree with the
operations, negative balances, and dependency cycles.

Cycles and unused accounts are warnings; the batch still runs.

Exit codes:
  0 - Batch is valid (warnings allowed)
  1 - Batch has validation errors
  2 - Command error (file not found, CUE syntax error, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	b, err := LoadBatch(path)
	if err != nil {
		return loadFailure(formatter, err)
	}
	formatter.VerboseLog("Compiled %d transaction(s) from %s", len(b.Transactions), path)

	result := newValidationResult(path, b, compiler.Validate(b), compiler.AnalyzeCycles(b))
	return outputValidation(formatter, result, ExitFailure)
}

// outputValidation writes a validation result. An invalid result returns
// an ExitError with exitCode.
func outputValidation(formatter *OutputFormatter, r ValidationResult, exitCode int) error {
	if r.Valid {
		return formatter.Success(r)
	}
	return formatter.Failure(exitCode, r.Errors[0].Code,
		fmt.Sprintf("validation failed with %d error(s)", len(r.Errors)), r)
}

// loadFailure reports a batch that could not be loaded. Load errors are
// command errors (exit code 2).
func loadFailure(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		var details any
		if line := loadErr.Line(); line > 0 {
			details = map[string]int{"line": line}
		}
		_ = formatter.Error(loadErr.Code, loadErr.Message, details)
		return WrapExitError(ExitCommandError, "failed to load batch", err)
	}
	_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, "failed to load batch", err)
}
