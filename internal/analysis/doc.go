// Package analysis extracts per-transaction read and write sets and
// classifies pairwise conflicts between transactions of a batch.
//
// Both steps are pure functions of their input. Read and write sets are kept
// as ordered sets so that every derived list (conflict accounts, DOT labels,
// stored records) comes out in a stable order.
package analysis
