package kvstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/synchrony/internal/commit"
	"github.com/roach88/synchrony/internal/ir"
)

var (
	keyVersion = []byte("meta/version")
	keySeq     = []byte("meta/seq")

	prefixBatch   = []byte("batch/")
	prefixSeq     = []byte("seq/")
	prefixAccount = []byte("acct/")
)

// ErrBatchExists is returned by Persist when the batch id or sequence
// number is already stored.
var ErrBatchExists = errors.New("batch already stored")

// ErrBatchNotFound is returned when a batch id is not in the store.
var ErrBatchNotFound = errors.New("batch not found")

// Store is a Badger-backed batch store.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	inMemory bool
	logger   *slog.Logger
}

// InMemory keeps all data in memory. The path is ignored.
func InMemory() Option {
	return func(o *options) { o.inMemory = true }
}

// WithLogger routes Badger's internal logging through l.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Open opens or creates a Badger database in dir.
func Open(dir string, opts ...Option) (*Store, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	bopts := badger.DefaultOptions(dir).WithLogger(badgerLogger{o.logger})
	if o.inMemory {
		bopts = bopts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db, logger: o.logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Entry is a stored batch.
type Entry struct {
	ID            string            `json:"id"`
	Seq           int64             `json:"seq"`
	Hash          string            `json:"hash"`
	Version       uint64            `json:"version"`
	Atomic        bool              `json:"atomic"`
	CommittedAt   time.Time         `json:"committed_at"`
	EngineVersion string            `json:"engine_version"`
	Transactions  []*ir.Transaction `json:"transactions"`
	Committed     []string          `json:"committed"`
	RolledBack    map[string]string `json:"rolled_back,omitempty"`
	Pre           ir.StateMap       `json:"pre"`
	Post          ir.StateMap       `json:"post"`
	Trace         []ir.TraceEvent   `json:"trace"`
}

type accountEntry struct {
	Balance int64  `json:"balance"`
	Nonce   uint64 `json:"nonce"`
	Version uint64 `json:"version"`
	BatchID string `json:"batch_id"`
}

// Persist writes a committed batch in one Badger transaction. It
// implements commit.Persister.
func (s *Store) Persist(ctx context.Context, rec *commit.Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("persist batch %s: %w", rec.BatchID, err)
	}

	entry := Entry{
		ID:            rec.BatchID,
		Seq:           rec.BatchSeq,
		Hash:          rec.BatchHash,
		Version:       rec.Version,
		Atomic:        rec.Atomic,
		CommittedAt:   rec.CommittedAt.UTC(),
		EngineVersion: ir.EngineVersion,
		Transactions:  rec.Transactions,
		Committed:     rec.Committed,
		RolledBack:    rec.RolledBack,
		Pre:           rec.Pre,
		Post:          rec.Post,
		Trace:         rec.Trace,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("persist batch %s: encode: %w", rec.BatchID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		bkey := batchKey(rec.BatchID)
		skey := seqKey(rec.BatchSeq)
		for _, k := range [][]byte{bkey, skey} {
			if _, err := txn.Get(k); err == nil {
				return fmt.Errorf("%w: %s", ErrBatchExists, k)
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}

		if err := txn.Set(bkey, data); err != nil {
			return err
		}
		if err := txn.Set(skey, []byte(rec.BatchID)); err != nil {
			return err
		}
		for _, id := range rec.Post.IDs() {
			st := rec.Post[id]
			acct, err := json.Marshal(accountEntry{Balance: st.Balance, Nonce: st.Nonce, Version: rec.Version, BatchID: rec.BatchID})
			if err != nil {
				return err
			}
			if err := txn.Set(accountKey(id), acct); err != nil {
				return err
			}
		}
		if err := txn.Set(keyVersion, encodeUint(rec.Version)); err != nil {
			return err
		}
		return txn.Set(keySeq, encodeUint(uint64(rec.BatchSeq)))
	})
	if err != nil {
		return fmt.Errorf("persist batch %s: %w", rec.BatchID, err)
	}
	s.logger.Debug("batch persisted", "batch", rec.BatchID, "seq", rec.BatchSeq, "accounts", len(rec.Post))
	return nil
}

// LoadAccounts returns the current account states and the ledger version of
// the last committed batch (0 for an empty store).
func (s *Store) LoadAccounts(ctx context.Context) (ir.StateMap, uint64, error) {
	states := make(ir.StateMap)
	var version uint64
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: prefixAccount})
		defer it.Close()
		for it.Seek(prefixAccount); it.ValidForPrefix(prefixAccount); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			id := string(item.Key()[len(prefixAccount):])
			err := item.Value(func(v []byte) error {
				var a accountEntry
				if err := json.Unmarshal(v, &a); err != nil {
					return fmt.Errorf("account %s: %w", id, err)
				}
				states[id] = ir.AccountState{Balance: a.Balance, Nonce: a.Nonce}
				return nil
			})
			if err != nil {
				return err
			}
		}

		var err error
		version, err = readUint(txn, keyVersion)
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("load accounts: %w", err)
	}
	return states, version, nil
}

// LastBatchSeq returns the highest stored batch sequence number, or 0.
func (s *Store) LastBatchSeq(ctx context.Context) (int64, error) {
	var seq uint64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		seq, err = readUint(txn, keySeq)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("last batch seq: %w", err)
	}
	return int64(seq), nil
}

// ReadBatch returns one stored batch. Returns ErrBatchNotFound if absent.
func (s *Store) ReadBatch(ctx context.Context, id string) (*Entry, error) {
	var entry Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(batchKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrBatchNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, &entry) })
	})
	if err != nil {
		return nil, fmt.Errorf("read batch %s: %w", id, err)
	}
	return &entry, nil
}

// ListBatches returns the ids of every stored batch in sequence order.
func (s *Store) ListBatches(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: prefixSeq})
		defer it.Close()
		for it.Seek(prefixSeq); it.ValidForPrefix(prefixSeq); it.Next() {
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			ids = append(ids, string(v))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return ids, nil
}

func batchKey(id string) []byte { return append(append([]byte{}, prefixBatch...), id...) }
func accountKey(id string) []byte { return append(append([]byte{}, prefixAccount...), id...) }

func seqKey(seq int64) []byte {
	return append(append([]byte{}, prefixSeq...), fmt.Sprintf("%020d", seq)...)
}

func encodeUint(n uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, n)
}

// readUint returns the value stored under key, or 0 if it is absent.
func readUint(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("%s: corrupt value of %d bytes", key, len(v))
	}
	return binary.BigEndian.Uint64(v), nil
}

// badgerLogger adapts slog to badger.Logger. Badger's info chatter is
// demoted to debug.
type badgerLogger struct{ l *slog.Logger }

func (b badgerLogger) Errorf(format string, args ...any) {
	b.l.Error(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.l.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.l.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.l.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}
