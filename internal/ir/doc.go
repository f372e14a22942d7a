// Package ir defines the data model shared by every stage of the Synchrony
// engine: transactions and their closed set of operations, account state
// snapshots, the append-only execution trace, and the canonical encodings
// used for hashing and storage.
//
// ir imports nothing internal. All other internal packages import ir, which
// keeps it the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Balances are int64 fixed-point units; no float types anywhere
//   - Transactions are immutable once constructed (constructors copy inputs)
//   - Operation is a sealed interface: Add, Subtract, Assign, Check
//   - All JSON tags use snake_case
package ir
