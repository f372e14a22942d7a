package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/synchrony/internal/commit"
	"github.com/roach88/synchrony/internal/config"
	"github.com/roach88/synchrony/internal/ir"
	"github.com/roach88/synchrony/internal/kvstore"
	"github.com/roach88/synchrony/internal/store"
)

// backend is the durable store a command runs against.
type backend interface {
	commit.Persister
	LoadAccounts(ctx context.Context) (ir.StateMap, uint64, error)
	LastBatchSeq(ctx context.Context) (int64, error)
	Close() error
}

// openBackend opens the SQLite database file or Badger directory at path.
func openBackend(kind, path string, logger *slog.Logger) (backend, error) {
	switch kind {
	case config.BackendSQLite:
		st, err := store.Open(path)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.BackendBadger:
		kv, err := kvstore.Open(path, kvstore.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return kv, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", kind)
	}
}

// storeFlags holds the --db and --backend flags shared by the commands
// that open a store. Empty values fall back to the config file.
type storeFlags struct {
	Database string
	Backend  string
}

func (f storeFlags) resolve(cfg config.Config) (kind, path string) {
	kind, path = cfg.Backend, cfg.DB
	if f.Backend != "" {
		kind = f.Backend
	}
	if f.Database != "" {
		path = f.Database
	}
	return kind, path
}
