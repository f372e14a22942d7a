package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainTransaction = "synchrony/transaction/v1"
	DomainBatch       = "synchrony/batch/v1"
	DomainState       = "synchrony/state/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TransactionDigest is the content hash of a transaction.
func TransactionDigest(tx *Transaction) (string, error) {
	form, err := tx.CanonicalForm()
	if err != nil {
		return "", fmt.Errorf("TransactionDigest: %w", err)
	}
	canonical, err := MarshalCanonical(form)
	if err != nil {
		return "", fmt.Errorf("TransactionDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTransaction, canonical), nil
}

// BatchHash identifies a batch by the digests of its transactions taken in
// precedence order. Reordering the input slice does not change the hash.
func BatchHash(txs []*Transaction) (string, error) {
	ordered := append([]*Transaction(nil), txs...)
	SortByPrecedence(ordered)

	digests := make([]any, 0, len(ordered))
	for _, tx := range ordered {
		d, err := TransactionDigest(tx)
		if err != nil {
			return "", fmt.Errorf("BatchHash: %s: %w", tx.ID, err)
		}
		digests = append(digests, d)
	}
	canonical, err := MarshalCanonical(digests)
	if err != nil {
		return "", fmt.Errorf("BatchHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainBatch, canonical), nil
}

// StateHash is the content hash of an account state map.
func StateHash(m StateMap) (string, error) {
	canonical, err := MarshalCanonical(CanonicalState(m))
	if err != nil {
		return "", fmt.Errorf("StateHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}

// MustBatchHash is like BatchHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustBatchHash(txs []*Transaction) string {
	h, err := BatchHash(txs)
	if err != nil {
		panic(err)
	}
	return h
}
