package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/synchrony/internal/ir"
)

// timeLayout stores timestamps as sortable UTC text.
const timeLayout = time.RFC3339Nano

// marshalTransaction converts a transaction to canonical JSON TEXT for
// storage. Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalTransaction(tx *ir.Transaction) (string, error) {
	form, err := tx.CanonicalForm()
	if err != nil {
		return "", fmt.Errorf("marshal transaction %s: %w", tx.ID, err)
	}
	data, err := ir.MarshalCanonical(form)
	if err != nil {
		return "", fmt.Errorf("marshal transaction %s: %w", tx.ID, err)
	}
	return string(data), nil
}

// unmarshalTransaction parses and validates a stored payload.
func unmarshalTransaction(data string) (*ir.Transaction, error) {
	var tx ir.Transaction
	if err := json.Unmarshal([]byte(data), &tx); err != nil {
		return nil, fmt.Errorf("unmarshal transaction: %w", err)
	}
	return &tx, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
