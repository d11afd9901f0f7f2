package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/readtime-server/internal/domain"
)

// maxTxnAttempts bounds how often an update is retried after badger reports
// a write conflict with a concurrent transaction.
const maxTxnAttempts = 5

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	Sessions   *Entity[domain.ReadingSession]
	Aggregates *Entity[domain.ReadingAggregate]
}

var _ SessionStore = (*Store)(nil)

// New creates a new Store instance with the given database path.
func New(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	store := &Store{
		db:     db,
		logger: logger,
	}
	store.initSessions()
	store.initAggregates()

	if logger != nil {
		logger.Info("Badger database opened successfully", "path", path)
	}

	return store, nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("Closing database connection")
	}
	return s.db.Close()
}

// Ping reports whether the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return errors.New("badger db is closed")
	}
	return s.db.View(func(_ *badger.Txn) error { return nil })
}

// update runs fn in a read-write transaction, retrying when a concurrent
// transaction committed a conflicting write first. fn must be safe to rerun.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 1; attempt <= maxTxnAttempts; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if s.logger != nil {
			s.logger.Debug("badger transaction conflict, retrying", "attempt", attempt)
		}
	}
	return fmt.Errorf("transaction conflict after %d attempts: %w", maxTxnAttempts, err)
}

// view runs fn in a read-only transaction.
func (s *Store) view(fn func(txn *badger.Txn) error) error {
	return s.db.View(fn)
}
