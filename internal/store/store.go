package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// schemaSQL creates the batch log tables: batches, batch_transactions,
// batch_accounts and trace_events hold one committed batch each; accounts
// holds the latest committed state of every account.
//
//go:embed schema.sql
var schemaSQL string

// migrations[i] moves a batch log from user_version i to i+1.
var migrations = [][]string{
	// v1: trace lookup by transaction, rolled-back listing by status.
	{
		`CREATE INDEX IF NOT EXISTS idx_trace_events_tx ON trace_events(batch_id, tx_id)`,
		`CREATE INDEX IF NOT EXISTS idx_batch_transactions_status ON batch_transactions(batch_id, status)`,
	},
}

// currentSchemaVersion is the user_version of a fully migrated batch log.
var currentSchemaVersion = len(migrations)

// connPragmas are applied on every Open. Foreign keys tie batch rows and
// account rows back to batches(id).
var connPragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// Store is the SQLite batch log. Each Persist writes a batch, its
// transactions, account before/after rows and trace events in one
// transaction, then advances the accounts table to the batch's post state.
type Store struct {
	db *sql.DB
}

// Open opens or creates the batch log at path and migrates it to
// currentSchemaVersion. Reopening an existing log is a no-op.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open batch log: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect batch log %s: %w", path, err)
	}

	// Batches append in sequence order; one connection keeps writers serial.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, p := range connPragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the batch log.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the connection for ad hoc queries against the batch tables.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate creates the batch tables and applies every migration above the
// log's user_version.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create batch tables: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	for v := version; v < len(migrations); v++ {
		for _, stmt := range migrations[v] {
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("migrate batch log to v%d: %w", v+1, err)
			}
		}
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// pragma reads the current value of a connection pragma.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}
