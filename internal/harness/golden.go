package harness

import (
	"context"
	"slices"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/synchrony/internal/ir"
)

// Snapshot is the schedule-independent part of a scenario result.
// Worker assignment and commit interleaving within a level are left out;
// levels and id sets are sorted.
type Snapshot struct {
	Name       string
	Outcome    string
	ErrorType  string
	Balances   map[string]int64
	Levels     [][]string
	Committed  []string
	RolledBack []string
	Conflicts  int
}

// NewSnapshot captures a result under name.
func NewSnapshot(name string, r *Result) Snapshot {
	s := Snapshot{
		Name:       name,
		Outcome:    r.Outcome,
		ErrorType:  string(r.ErrorType),
		Balances:   r.Balances,
		Committed:  slices.Sorted(slices.Values(r.Committed)),
		RolledBack: slices.Sorted(slices.Values(r.RolledBack)),
		Conflicts:  r.Conflicts,
	}
	for _, level := range r.Levels {
		s.Levels = append(s.Levels, slices.Sorted(slices.Values(level)))
	}
	return s
}

// toCanonicalMap converts a Snapshot for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles primitives,
// slices and maps.
func (s Snapshot) toCanonicalMap() map[string]any {
	levels := make([]any, len(s.Levels))
	for i, level := range s.Levels {
		levels[i] = level
	}
	balances := s.Balances
	if balances == nil {
		balances = map[string]int64{}
	}
	return map[string]any{
		"name":        s.Name,
		"outcome":     s.Outcome,
		"error_type":  s.ErrorType,
		"balances":    balances,
		"levels":      levels,
		"committed":   nonNil(s.Committed),
		"rolled_back": nonNil(s.RolledBack),
		"conflicts":   s.Conflicts,
	}
}

// MarshalCanonical renders the snapshot as RFC 8785 canonical JSON.
func (s Snapshot) MarshalCanonical() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can make further checks. Test failure (via
// goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares a result's snapshot against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
