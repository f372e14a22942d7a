// Package harness runs YAML batch scenarios against the real engine.
//
// A scenario declares accounts, transactions and assertions. Run builds
// the transactions, processes them as one batch on a fresh engine backed by
// an in-memory SQLite store, replays the stored batch, and evaluates the
// assertions against the outcome.
//
// # Determinism
//
// Batch ids come from testutil.SequentialIDs and timestamps from a
// testutil.StepClock, so everything except worker assignment and the
// interleaving of independent transactions is reproducible. Golden
// snapshots therefore record only schedule-independent facts: outcome,
// final balances, levels, and the committed and rolled-back sets.
//
// # Stalls
//
// A transaction's stall delays its execution inside the executor, for
// exercising batch timeouts. The stall honors cancellation.
//
// # Scenario Format
//
//	name: disjoint-transfers
//	description: two transfers on disjoint accounts run in one level
//	config: {workers: 4, timeout: 1s, atomic: false}
//	accounts: {alice: 1000, bob: 500}
//	transactions:
//	  - id: T1
//	    seq: 1
//	    ops:
//	      - {op: subtract, account: alice, amount: 100}
//	      - {op: add, account: bob, amount: 100}
//	    post:
//	      - {account: alice, cmp: ">=", value: 0}
//	assertions:
//	  - type: outcome
//	    outcome: committed
//	  - type: final_state
//	    balances: {alice: 900, bob: 600}
package harness
