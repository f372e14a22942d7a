// Package engine implements the Synchrony batch processor.
//
// A batch moves through a fixed pipeline:
//
//	ANALYZING -> EXECUTING -> PROVING -> [SERIAL_FALLBACK -> EXECUTING]
//	          -> VALIDATING -> COMMITTING | ROLLING_BACK -> DONE
//
// Analysis builds the dependency graph and its levels. Execution runs each
// level on a bounded worker pool against copy-on-write account state. The
// prover checks that the parallel trace is equivalent to a serial run; if
// it cannot, the batch is re-executed serially once. Conservation is then
// checked over every referenced account, and the commit manager swaps the
// working states into the ledger, or discards them.
//
// Process is the single translation boundary: it never returns an error
// and never panics. Every failure is classified in BatchResult.
//
// Batches are serialized against the ledger. Run provides a single-writer
// loop over batches queued with Submit.
//
// CRITICAL PATTERNS:
//
// Logical clock: every batch is numbered by Clock.Next(). Wall-clock time is
// used for trace timestamps and metrics only, never for ordering decisions.
//
// Deterministic scheduling: transactions are ordered by (Seq, ID), levels
// are listed in that order, and level N+1 never starts before level N's
// merge completes.
package engine
