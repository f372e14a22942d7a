package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synchrony/internal/engine"
)

func runScenarioFile(t *testing.T, path string) *Result {
	t.Helper()
	s, err := LoadScenario(path)
	require.NoError(t, err)
	res, err := Run(context.Background(), s)
	require.NoError(t, err)
	return res
}

func TestRun_ScenarioA_DisjointTransfers(t *testing.T) {
	res := runScenarioFile(t, "testdata/scenarios/a_disjoint_transfers.yaml")
	assert.True(t, res.Pass, "errors: %v", res.Errors)
	assert.Equal(t, OutcomeCommitted, res.Outcome)
	assert.GreaterOrEqual(t, res.Batch.Metrics.WorkersSpawned, 2)
}

func TestRun_ScenarioB_DependentChain(t *testing.T) {
	res := runScenarioFile(t, "testdata/scenarios/b_dependent_deposit_withdraw.yaml")
	assert.True(t, res.Pass, "errors: %v", res.Errors)
	assert.Equal(t, []string{"T1", "T2"}, res.Committed)
}

func TestRun_ScenarioC_ConservationViolation(t *testing.T) {
	res := runScenarioFile(t, "testdata/scenarios/c_conservation_violation.yaml")
	assert.True(t, res.Pass, "errors: %v", res.Errors)
	assert.Equal(t, engine.ErrConservation, res.ErrorType)
	assert.Equal(t, "100", res.Batch.Diagnostics["delta"])
}

func TestRun_ScenarioD_Timeout(t *testing.T) {
	res := runScenarioFile(t, "testdata/scenarios/d_batch_timeout.yaml")
	assert.True(t, res.Pass, "errors: %v", res.Errors)
	assert.Equal(t, engine.ErrTimeout, res.ErrorType)
}

func TestRun_FailingAssertionsReported(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	s.Assertions = append(s.Assertions,
		Assertion{Type: AssertFinalState, Balances: map[string]int64{"alice": 99}},
		Assertion{Type: AssertOutcome, Outcome: OutcomeFailed},
	)

	res, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, res.Pass)
	assert.Len(t, res.Errors, 2)
	assert.Equal(t, int64(15), res.Balances["alice"])
}

func TestRun_FaultedTransactionRollsBackAlone(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: partial
description: an overdraft faults while its neighbor commits
accounts: {alice: 10, bob: 10}
transactions:
  - id: ok
    flow: -5
    ops: [{op: subtract, account: alice, amount: 5}]
  - id: overdraft
    flow: -50
    ops: [{op: subtract, account: bob, amount: 50}]
assertions:
  - {type: outcome, outcome: committed}
  - {type: committed, ids: [ok]}
  - {type: rolled_back, ids: [overdraft]}
  - {type: final_state, balances: {alice: 5, bob: 10}}
`))
	require.NoError(t, err)

	res, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, res.Pass, "errors: %v", res.Errors)
}

func TestRun_AtomicFault(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: atomic
description: an atomic batch aborts on any fault
config: {atomic: true}
accounts: {alice: 10, bob: 10}
transactions:
  - id: ok
    flow: -5
    ops: [{op: subtract, account: alice, amount: 5}]
  - id: overdraft
    flow: -50
    ops: [{op: subtract, account: bob, amount: 50}]
assertions:
  - {type: outcome, outcome: failed, error_type: TRANSACTION_FAULT}
  - {type: final_state, balances: {alice: 10, bob: 10}}
  - {type: rolled_back, ids: [ok, overdraft]}
`))
	require.NoError(t, err)

	res, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, res.Pass, "errors: %v", res.Errors)
}

func TestRun_BuildErrorIsReturned(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	s.Transactions[0].Ops[0].Account = "ghost"

	_, err = Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minimal")
}
