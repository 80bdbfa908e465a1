// Package badger provides a persistent MetadataStore implementation backed
// by BadgerDB.
//
// This implementation is suitable for:
//   - Production environments requiring persistence across restarts
//   - Systems where the namespace and change logs must survive crashes
//   - Multi-GB metadata storage requirements
//
// Key Features:
//   - Persistent storage with crash recovery (WAL-based)
//   - ACID transactions for multi-key mutations (move, recursive delete,
//     share-link redemption)
//   - Efficient range scans for directory listings and change-log replay
//
// Thread Safety:
// Every operation runs as a single BadgerDB transaction, so cross-key
// invariants (child index vs node rows, head vs log entries) hold without a
// store-wide lock. Mutations rely on BadgerDB's transaction conflict
// detection: a conflicting commit is retried, and unrelated mutations
// proceed concurrently.
package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// Store implements metadata.MetadataStore using BadgerDB for persistence.
// See keys.go for the key schema.
type Store struct {
	// db is the BadgerDB database handle.
	db *badger.DB

	sinkMu sync.RWMutex
	sink   metadata.ChangeSink
}

// update runs fn in a read-write transaction, retrying on commit conflict.
// fn must be safe to re-run from scratch: any state it captures has to be
// reset at the top of the closure.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	for {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
}

// Config contains configuration for creating a BadgerDB metadata store.
type Config struct {
	// DBPath is the directory where BadgerDB stores its files (value log,
	// LSM tree, manifest).
	DBPath string

	// BadgerOptions allows full customization of BadgerDB behavior.
	// If nil, sensible defaults for a metadata workload are used.
	BadgerOptions *badger.Options

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 64).
	BlockCacheSizeMB int64

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 32).
	IndexCacheSizeMB int64
}

// NewStore opens (or creates) a BadgerDB metadata store at config.DBPath.
//
// The returned store is immediately ready for use and safe for concurrent
// access from multiple goroutines.
func NewStore(ctx context.Context, config Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if config.BadgerOptions != nil {
		opts = *config.BadgerOptions
	} else {
		opts = badger.DefaultOptions(config.DBPath)

		// Metadata records are small and already compact; compression
		// overhead is not worth it.
		opts = opts.WithLoggingLevel(badger.WARNING)
		opts = opts.WithCompression(options.None)

		blockCacheMB := config.BlockCacheSizeMB
		if blockCacheMB == 0 {
			blockCacheMB = 64
		}
		indexCacheMB := config.IndexCacheSizeMB
		if indexCacheMB == 0 {
			indexCacheMB = 32
		}
		opts = opts.WithBlockCacheSize(blockCacheMB << 20)
		opts = opts.WithIndexCacheSize(indexCacheMB << 20)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	return &Store{db: db}, nil
}

// SetChangeSink installs the sink notified of committed change entries.
func (s *Store) SetChangeSink(sink metadata.ChangeSink) {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	s.sink = sink
}

// publish delivers ops to the sink after the transaction has committed, so
// a slow sink never blocks mutators.
func (s *Store) publish(ops []metadata.ChangeOp) {
	s.sinkMu.RLock()
	sink := s.sink
	s.sinkMu.RUnlock()

	if sink == nil {
		return
	}
	for _, op := range ops {
		sink.Publish(op.UserID, op)
	}
}

// Healthcheck verifies the database is open and readable.
func (s *Store) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("healthcheck-probe"))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("badger healthcheck failed: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
