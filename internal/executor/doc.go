// Package executor runs a batch level by level on a bounded worker pool.
//
// Within a level every transaction works on a private copy of the accounts
// it writes and reads everything else from the immutable level-start view.
// No account is shared between workers, so execution needs no per-account
// locking. The only critical sections are the trace append and the merge
// of private copies into the working state after the whole level finishes.
// Level N+1 starts only after level N is merged.
//
// The whole call is bounded by one timeout. When it expires, outstanding
// work is abandoned, the trace is sealed and nothing from the unfinished
// level is merged.
package executor
