package store

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/readtime-server/internal/domain"
)

// initAggregates initializes the Aggregates entity, keyed by userID:bookID.
func (s *Store) initAggregates() {
	s.Aggregates = NewEntity[domain.ReadingAggregate](s, "aggregate:")
}

// GetAggregate returns the reading total for a user+book.
// Returns nil, nil if no session of the pairing has been closed yet.
func (s *Store) GetAggregate(ctx context.Context, userID, bookID string) (*domain.ReadingAggregate, error) {
	agg, err := s.Aggregates.Get(ctx, pairKey(userID, bookID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return agg, nil
}

// addToAggregateTxn adds elapsed to the pairing's aggregate, creating it on first use.
func (s *Store) addToAggregateTxn(txn *badger.Txn, userID, bookID string, elapsed time.Duration, now time.Time) (*domain.ReadingAggregate, error) {
	id := pairKey(userID, bookID)

	agg, err := s.Aggregates.GetTxn(txn, id)
	if errors.Is(err, ErrNotFound) {
		agg = domain.NewReadingAggregate(userID, bookID)
	} else if err != nil {
		return nil, err
	}

	agg.Add(elapsed, now)
	if err := s.Aggregates.UpsertTxn(txn, id, agg); err != nil {
		return nil, err
	}
	return agg, nil
}
