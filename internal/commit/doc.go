// Package commit owns the authoritative account states and applies batch
// results to them in two phases.
//
// Stage snapshots the pre-batch states of the accounts a batch touches and
// records the ledger version. Hold keeps the validated working states aside.
// Commit checks the ledger has not moved since staging, hands the record to
// the Persister, and only then swaps the working states in under the ledger
// lock. Rollback discards the working states; the ledger is never touched.
package commit
