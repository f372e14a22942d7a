// Package store provides SQLite-backed durable storage for committed
// Synchrony batches.
//
// Store implements commit.Persister. Each committed batch is written in one
// SQL transaction:
//   - batches: id, sequence number, content hash, ledger version
//   - batch_transactions: canonical JSON payload and final status of every
//     transaction in the batch
//   - batch_accounts: pre- and post-batch state of every referenced account
//   - accounts: current authoritative state, upserted per batch
//   - trace_events: the execution trace
//
// If the SQL transaction fails nothing of the batch is visible and the
// ledger does not swap.
//
// # Critical Patterns
//
// Logical ordering: batches are ordered by seq, trace events by their
// append position. Timestamps are informational only.
//
// Deterministic results: every multi-row query has an ORDER BY on logical
// columns with id COLLATE BINARY as the tiebreak.
//
// Content addressing: transaction payloads are RFC 8785 canonical JSON and
// digests come from internal/ir/hash.go, so a replayed batch can be checked
// byte for byte.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
