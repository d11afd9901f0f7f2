// Package store defines the persistence interface for reading sessions and
// provides the BadgerDB implementation. The SQLite implementation lives in
// the sqlite subpackage.
package store

import (
	"context"
	"time"

	"github.com/listenupapp/readtime-server/internal/domain"
)

// SessionStore persists reading sessions and their per user+book aggregates.
//
// Implementations guarantee:
//   - at most one open session per user+book (CreateSession fails with
//     ErrOpenSessionExists otherwise);
//   - CloseSession flips an open session to closed and adds its elapsed time
//     to the aggregate in one atomic step, or fails with ErrSessionClosed;
//   - deleting sessions never changes an aggregate.
type SessionStore interface {
	// Sessions
	CreateSession(ctx context.Context, session *domain.ReadingSession) error
	GetSession(ctx context.Context, id string) (*domain.ReadingSession, error)
	FindOpenSession(ctx context.Context, userID, bookID string) (*domain.ReadingSession, error)
	ListOpenSessions(ctx context.Context, createdBefore time.Time) ([]*domain.ReadingSession, error)
	CloseSession(ctx context.Context, id string, req domain.CloseRequest) (*domain.ReadingSession, *domain.ReadingAggregate, error)
	ListPairSessions(ctx context.Context, userID, bookID string) ([]*domain.ReadingSession, error)
	ListUserSessionsBetween(ctx context.Context, userID string, start, end time.Time) ([]*domain.ReadingSession, error)
	DeleteSessions(ctx context.Context, ids []string) (int, error)

	// Aggregates
	GetAggregate(ctx context.Context, userID, bookID string) (*domain.ReadingAggregate, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// Ordering notes shared by both implementations:
//   - ListPairSessions and ListUserSessionsBetween return sessions ascending
//     by CreatedAt, ties broken by ID.
//   - ListOpenSessions with a zero createdBefore returns every open session.
//   - FindOpenSession and GetAggregate return nil, nil when nothing exists.
