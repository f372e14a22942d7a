package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synchrony/internal/engine"
)

func sampleResult() *Result {
	r := NewResult()
	r.Outcome = OutcomeCommitted
	r.Balances = map[string]int64{"alice": 900, "bob": 600}
	r.Levels = [][]string{{"T2", "T1"}, {"T3"}}
	r.Committed = []string{"T2", "T1", "T3"}
	r.RolledBack = []string{"T4"}
	r.Conflicts = 2
	return r
}

func TestEvaluateAssertions_AllPass(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertOutcome, Outcome: OutcomeCommitted},
		{Type: AssertFinalState, Balances: map[string]int64{"alice": 900}},
		{Type: AssertLevels, Levels: [][]string{{"T1", "T2"}, {"T3"}}},
		{Type: AssertCommitted, IDs: []string{"T1", "T2", "T3"}},
		{Type: AssertRolledBack, IDs: []string{"T4"}},
		{Type: AssertCommitOrder, IDs: []string{"T1", "T3"}},
		{Type: AssertConflictCount, Count: 2},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		contains  string
	}{
		{"outcome", Assertion{Type: AssertOutcome, Outcome: OutcomeFailed}, "Expected: failed"},
		{"error type", Assertion{Type: AssertOutcome, Outcome: OutcomeCommitted, ErrorType: "BATCH_TIMEOUT"}, "error type BATCH_TIMEOUT"},
		{"balance", Assertion{Type: AssertFinalState, Balances: map[string]int64{"alice": 1}}, "alice: got 900, want 1"},
		{"missing account", Assertion{Type: AssertFinalState, Balances: map[string]int64{"zed": 1}}, "zed: missing"},
		{"level count", Assertion{Type: AssertLevels, Levels: [][]string{{"T1", "T2", "T3"}}}, "levels [[T1 T2 T3]]"},
		{"level members", Assertion{Type: AssertLevels, Levels: [][]string{{"T1"}, {"T2", "T3"}}}, "levels [[T2 T1] [T3]]"},
		{"committed", Assertion{Type: AssertCommitted, IDs: []string{"T1"}}, "[T2 T1 T3]"},
		{"rolled back", Assertion{Type: AssertRolledBack, IDs: []string{}}, "[T4]"},
		{"order", Assertion{Type: AssertCommitOrder, IDs: []string{"T1", "T2"}}, "T1 (pos 1) should be before T2 (pos 0)"},
		{"order missing", Assertion{Type: AssertCommitOrder, IDs: []string{"T1", "T4"}}, "T4 did not commit"},
		{"conflicts", Assertion{Type: AssertConflictCount, Count: 0}, "Expected: 0 conflicts"},
		{"unknown", Assertion{Type: "vibes"}, "unknown assertion type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion})
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.contains)
		})
	}
}

func TestAssertionError_IncludesBatchContext(t *testing.T) {
	r := sampleResult()
	r.Outcome = OutcomeFailed
	r.ErrorType = engine.ErrConservation

	err := &AssertionError{Type: AssertOutcome, Expected: "committed", Actual: "failed", Result: r}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: outcome")
	assert.Contains(t, msg, "outcome: failed (CONSERVATION_VIOLATION)")
	assert.Contains(t, msg, "rolled back: [T4]")
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
