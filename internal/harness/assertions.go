package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/synchrony/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Result   *Result
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if r := e.Result; r != nil {
		fmt.Fprintf(&buf, "\nBatch:\n")
		fmt.Fprintf(&buf, "  outcome: %s", r.Outcome)
		if r.ErrorType != "" {
			fmt.Fprintf(&buf, " (%s)", r.ErrorType)
		}
		fmt.Fprintf(&buf, "\n  levels: %v\n", r.Levels)
		fmt.Fprintf(&buf, "  committed: %v\n", r.Committed)
		fmt.Fprintf(&buf, "  rolled back: %v\n", r.RolledBack)
	}
	return buf.String()
}

// EvaluateAssertions runs all assertions against the result.
// Returns error messages for failed assertions (empty if all pass).
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errors = append(errors, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errors
}

func evaluate(r *Result, a Assertion) error {
	switch a.Type {
	case AssertOutcome:
		return assertOutcome(r, a)
	case AssertFinalState:
		return assertFinalState(r, a)
	case AssertLevels:
		return assertLevels(r, a)
	case AssertCommitted:
		return assertSet(r, a, r.Committed)
	case AssertRolledBack:
		return assertSet(r, a, r.RolledBack)
	case AssertCommitOrder:
		return assertCommitOrder(r, a)
	case AssertConflictCount:
		return assertConflictCount(r, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

func assertOutcome(r *Result, a Assertion) error {
	if r.Outcome != a.Outcome {
		return &AssertionError{Type: a.Type, Expected: a.Outcome, Actual: r.Outcome, Result: r}
	}
	if a.ErrorType != "" && string(r.ErrorType) != a.ErrorType {
		return &AssertionError{
			Type:     a.Type,
			Expected: "error type " + a.ErrorType,
			Actual:   "error type " + string(r.ErrorType),
			Result:   r,
		}
	}
	return nil
}

// assertFinalState checks the listed balances (subset match).
func assertFinalState(r *Result, a Assertion) error {
	var mismatches []string
	for _, acct := range ir.SortedKeys(a.Balances) {
		want := a.Balances[acct]
		got, ok := r.Balances[acct]
		switch {
		case !ok:
			mismatches = append(mismatches, fmt.Sprintf("%s: missing, want %d", acct, want))
		case got != want:
			mismatches = append(mismatches, fmt.Sprintf("%s: got %d, want %d", acct, got, want))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("balances %v", a.Balances),
			Actual:   strings.Join(mismatches, "; "),
			Result:   r,
		}
	}
	return nil
}

// assertLevels compares levels in order; members of a level are a set.
func assertLevels(r *Result, a Assertion) error {
	fail := &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("levels %v", a.Levels),
		Actual:   fmt.Sprintf("levels %v", r.Levels),
		Result:   r,
	}
	if len(r.Levels) != len(a.Levels) {
		return fail
	}
	for i := range a.Levels {
		if !sameMembers(r.Levels[i], a.Levels[i]) {
			return fail
		}
	}
	return nil
}

func assertSet(r *Result, a Assertion, got []string) error {
	if !sameMembers(got, a.IDs) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%v", a.IDs),
			Actual:   fmt.Sprintf("%v", got),
			Result:   r,
		}
	}
	return nil
}

// assertCommitOrder checks that the ids committed in the given relative
// order. Other transactions may commit in between.
func assertCommitOrder(r *Result, a Assertion) error {
	positions := make(map[string]int, len(r.Committed))
	for i, id := range r.Committed {
		positions[id] = i
	}

	for _, id := range a.IDs {
		if _, ok := positions[id]; !ok {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("all ids committed: %v", a.IDs),
				Actual:   fmt.Sprintf("%s did not commit", id),
				Result:   r,
			}
		}
	}
	for i := 1; i < len(a.IDs); i++ {
		prev, curr := a.IDs[i-1], a.IDs[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("commit order %v", a.IDs),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Result: r,
			}
		}
	}
	return nil
}

func assertConflictCount(r *Result, a Assertion) error {
	if r.Conflicts != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d conflicts", a.Count),
			Actual:   fmt.Sprintf("%d conflicts", r.Conflicts),
			Result:   r,
		}
	}
	return nil
}

func sameMembers(a, b []string) bool {
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
