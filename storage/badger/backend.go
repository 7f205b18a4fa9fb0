package badger

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Backend holds the BadgerDB instance of the checkpoint store.
// Batch files live on disk next to it; only run state is kept here.
type Backend struct {
	db *badger.DB
}

// BackendOption adjusts the BadgerDB options before the store is opened.
type BackendOption func(*badger.Options)

// WithLogger routes BadgerDB log output to logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) BackendOption {
	return func(opts *badger.Options) {
		if logger == nil {
			logger = slog.Default()
		}
		opts.Logger = slogAdapter{logger: logger}
	}
}

// WithSyncWrites controls whether every commit is fsynced.
// On-disk stores sync by default: a checkpoint is the manifest a resumed
// run trusts, and there is only one write per flushed batch.
func WithSyncWrites(sync bool) BackendOption {
	return func(opts *badger.Options) {
		opts.SyncWrites = sync
	}
}

// slogAdapter implements badger.Logger on top of slog. Badger's info output
// is internal housekeeping and is logged at debug level.
type slogAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = slogAdapter{}

func (a slogAdapter) logf(level slog.Level, format string, args ...any) {
	ctx := context.Background()
	if !a.logger.Enabled(ctx, level) {
		return
	}
	a.logger.Log(ctx, level, fmt.Sprintf(format, args...), "component", "badger")
}

func (a slogAdapter) Errorf(format string, args ...any) {
	a.logf(slog.LevelError, format, args...)
}

func (a slogAdapter) Warningf(format string, args ...any) {
	a.logf(slog.LevelWarn, format, args...)
}

func (a slogAdapter) Infof(format string, args ...any) {
	a.logf(slog.LevelDebug, format, args...)
}

func (a slogAdapter) Debugf(format string, args ...any) {
	a.logf(slog.LevelDebug, format, args...)
}

// OpenBackend opens the checkpoint store in dir, creating the directory if
// needed. With inMemory set, dir is ignored and nothing touches the disk.
func OpenBackend(dir string, inMemory bool, opts ...BackendOption) (*Backend, error) {
	var bopts badger.Options
	if inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state directory %s: %w", dir, err)
		}
		bopts = badger.DefaultOptions(dir).WithSyncWrites(true)
	}
	bopts.Logger = slogAdapter{logger: slog.Default()}
	bopts.Compression = options.None

	for _, opt := range opts {
		opt(&bopts)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	return &Backend{db: db}, nil
}

// Close closes the BadgerDB database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx runs fn in a transaction that is always discarded afterwards.
// Write transactions must commit inside fn.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}
