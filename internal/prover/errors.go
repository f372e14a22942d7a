package prover

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Counterexample reports that the parallel execution could not be shown
// equivalent to a serial one.
type Counterexample struct {
	// Reason describes the failure when no witness applies, such as a trace
	// ordering violation or an oracle that gave up.
	Reason string

	// Witness is a pre-batch assignment under which the executions diverge.
	Witness  Assignment
	Parallel map[string]int64
	Serial   map[string]int64
}

func (c *Counterexample) Error() string {
	if len(c.Witness) == 0 {
		return "linearizability not proven: " + c.Reason
	}
	var diverged []string
	for _, acct := range SortedVars(c.Parallel) {
		if c.Parallel[acct] != c.Serial[acct] {
			diverged = append(diverged, fmt.Sprintf("%s: parallel=%d serial=%d", acct, c.Parallel[acct], c.Serial[acct]))
		}
	}
	sort.Strings(diverged)
	return fmt.Sprintf("linearizability counterexample at %s: %s", formatAssignment(c.Witness), strings.Join(diverged, "; "))
}

// IsCounterexample checks if an error is a Counterexample.
func IsCounterexample(err error) bool {
	var ce *Counterexample
	return errors.As(err, &ce)
}

func formatAssignment(a Assignment) string {
	parts := make([]string, 0, len(a))
	for _, v := range SortedVars(a) {
		parts = append(parts, fmt.Sprintf("%s=%d", v, a[v]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
