// Package kvstore provides a BadgerDB-backed durable record of committed
// batches. It satisfies the same commit.Persister and LoadAccounts contract
// as the SQLite store and is selected with `backend: badger`.
//
// # Key Layout
//
//	meta/version          ledger version of the last committed batch (8 bytes, big endian)
//	meta/seq              highest committed batch sequence number (8 bytes, big endian)
//	batch/<id>            JSON batch entry: header, transactions, states, trace
//	seq/<%020d>           batch id, so a prefix scan yields sequence order
//	acct/<id>             JSON account entry: current state and writing batch
//
// Every batch is written in one read-write Badger transaction. Badger
// serializes conflicting writers, so a duplicate batch id or sequence number
// is detected inside the transaction and nothing is written.
package kvstore
