package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/readtime-server/internal/domain"
)

// initSessions initializes the Sessions entity on the store.
//
// Indexes:
//   - open: userID:bookID, present only while the session is open. Unique, so
//     a second open session for the same pairing is rejected by the store.
//   - pair: userID:bookID:createdAt:sessionID, for retention and history.
//   - user_time: userID:createdAt:sessionID, for calendar range scans.
//   - open_time: createdAt:sessionID, present only while open, for the sweeper.
func (s *Store) initSessions() {
	s.Sessions = NewEntity[domain.ReadingSession](s, "session:").
		WithUniqueIndex("open", func(rs *domain.ReadingSession) []string {
			if !rs.IsOpen {
				return nil
			}
			return []string{pairKey(rs.UserID, rs.BookID)}
		}, ErrOpenSessionExists).
		WithIndex("pair", func(rs *domain.ReadingSession) []string {
			return []string{pairKey(rs.UserID, rs.BookID) + ":" + timeKey(rs.CreatedAt) + ":" + rs.ID}
		}).
		WithIndex("user_time", func(rs *domain.ReadingSession) []string {
			return []string{rs.UserID + ":" + timeKey(rs.CreatedAt) + ":" + rs.ID}
		}).
		WithIndex("open_time", func(rs *domain.ReadingSession) []string {
			if !rs.IsOpen {
				return nil
			}
			return []string{timeKey(rs.CreatedAt) + ":" + rs.ID}
		})
}

// pairKey joins a user and book ID. IDs are validated to exclude ':'.
func pairKey(userID, bookID string) string {
	return userID + ":" + bookID
}

// timeKey renders t as fixed-width nanoseconds so keys sort chronologically.
func timeKey(t time.Time) string {
	n := t.UnixNano()
	if n < 0 {
		n = 0
	}
	return fmt.Sprintf("%020d", n)
}

// CreateSession stores a new open session.
// Returns ErrOpenSessionExists if the pairing already has an open session.
func (s *Store) CreateSession(ctx context.Context, session *domain.ReadingSession) error {
	if err := s.Sessions.Create(ctx, session.ID, session); err != nil {
		if errors.Is(err, ErrOpenSessionExists) {
			return ErrOpenSessionExists
		}
		return err
	}
	return nil
}

// GetSession returns a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*domain.ReadingSession, error) {
	return s.Sessions.Get(ctx, id)
}

// FindOpenSession returns the open session for a user+book, or nil if there is none.
func (s *Store) FindOpenSession(ctx context.Context, userID, bookID string) (*domain.ReadingSession, error) {
	session, err := s.Sessions.GetByIndex(ctx, "open", pairKey(userID, bookID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open session: %w", err)
	}
	return session, nil
}

// ListOpenSessions returns open sessions created before createdBefore,
// oldest first. A zero createdBefore returns all open sessions.
func (s *Store) ListOpenSessions(ctx context.Context, createdBefore time.Time) ([]*domain.ReadingSession, error) {
	to := ""
	if !createdBefore.IsZero() {
		to = timeKey(createdBefore)
	}
	sessions, err := s.Sessions.ScanIndex(ctx, "open_time", "", to)
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}
	return sessions, nil
}

// CloseSession closes an open session and adds its elapsed time to the
// user+book aggregate in the same transaction.
// Returns ErrSessionClosed if another writer closed it first.
func (s *Store) CloseSession(ctx context.Context, id string, req domain.CloseRequest) (*domain.ReadingSession, *domain.ReadingAggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var (
		closed *domain.ReadingSession
		agg    *domain.ReadingAggregate
	)
	err := s.update(func(txn *badger.Txn) error {
		session, err := s.Sessions.GetTxn(txn, id)
		if err != nil {
			return err
		}
		if !session.IsOpen {
			return ErrSessionClosed
		}

		old := *session
		session.Close(req.Elapsed, req.Reason, req.ClosedAt)
		if err := s.Sessions.putTxn(txn, id, session, &old); err != nil {
			return fmt.Errorf("write closed session: %w", err)
		}

		aggregate, err := s.addToAggregateTxn(txn, session.UserID, session.BookID, req.Elapsed, req.ClosedAt)
		if err != nil {
			return err
		}

		closed = session
		agg = aggregate
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return closed, agg, nil
}

// ListPairSessions returns every retained session of a user+book, oldest first.
func (s *Store) ListPairSessions(ctx context.Context, userID, bookID string) ([]*domain.ReadingSession, error) {
	sessions, err := s.Sessions.ScanIndex(ctx, "pair", pairKey(userID, bookID)+":", "")
	if err != nil {
		return nil, fmt.Errorf("list sessions for user %s book %s: %w", userID, bookID, err)
	}
	return sessions, nil
}

// ListUserSessionsBetween returns a user's sessions created in [start, end), oldest first.
func (s *Store) ListUserSessionsBetween(ctx context.Context, userID string, start, end time.Time) ([]*domain.ReadingSession, error) {
	from := userID + ":" + timeKey(start)
	to := userID + ":" + timeKey(end)
	sessions, err := s.Sessions.ScanIndex(ctx, "user_time", from, to)
	if err != nil {
		return nil, fmt.Errorf("list sessions for user %s: %w", userID, err)
	}
	return sessions, nil
}

// DeleteSessions removes the given sessions and returns how many existed.
// Aggregates are not touched.
func (s *Store) DeleteSessions(ctx context.Context, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int
	err := s.update(func(txn *badger.Txn) error {
		deleted = 0
		for _, id := range ids {
			existed, err := s.Sessions.DeleteTxn(txn, id)
			if err != nil {
				return fmt.Errorf("delete session %s: %w", id, err)
			}
			if existed {
				deleted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
