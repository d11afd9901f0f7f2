// Package storetest holds behavior tests shared by every store.SessionStore
// implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/readtime-server/internal/domain"
	"github.com/listenupapp/readtime-server/internal/store"
)

// Factory returns a fresh, empty store. It should register its own cleanup.
type Factory func(t *testing.T) store.SessionStore

// base is a fixed instant so timestamps round-trip exactly.
var base = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

// Run exercises f against the SessionStore contract.
func Run(t *testing.T, f Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, f(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, f(t)) })
	t.Run("SingleOpenPerPair", func(t *testing.T) { testSingleOpenPerPair(t, f(t)) })
	t.Run("FindOpenSession", func(t *testing.T) { testFindOpenSession(t, f(t)) })
	t.Run("CloseUpdatesAggregate", func(t *testing.T) { testCloseUpdatesAggregate(t, f(t)) })
	t.Run("CloseTwice", func(t *testing.T) { testCloseTwice(t, f(t)) })
	t.Run("ConcurrentClose", func(t *testing.T) { testConcurrentClose(t, f(t)) })
	t.Run("ListPairSessionsOrdered", func(t *testing.T) { testListPairSessionsOrdered(t, f(t)) })
	t.Run("ListOpenSessions", func(t *testing.T) { testListOpenSessions(t, f(t)) })
	t.Run("ListUserSessionsBetween", func(t *testing.T) { testListUserSessionsBetween(t, f(t)) })
	t.Run("DeleteKeepsAggregate", func(t *testing.T) { testDeleteKeepsAggregate(t, f(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, f(t).Ping(context.Background())) })
}

func newSession(id, userID, bookID string, createdAt time.Time) *domain.ReadingSession {
	return domain.NewReadingSession(id, userID, bookID, createdAt)
}

func closeReq(elapsed time.Duration, reason domain.CloseReason) domain.CloseRequest {
	return domain.CloseRequest{Elapsed: elapsed, Reason: reason, ClosedAt: base.Add(time.Hour)}
}

func testCreateAndGet(t *testing.T, s store.SessionStore) {
	ctx := context.Background()
	rs := newSession("rsession-1", "user-1", "book-1", base)
	require.NoError(t, s.CreateSession(ctx, rs))

	got, err := s.GetSession(ctx, "rsession-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "book-1", got.BookID)
	assert.True(t, got.CreatedAt.Equal(base))
	assert.True(t, got.IsOpen)
	assert.Equal(t, time.Duration(0), got.Elapsed)
	assert.Nil(t, got.ClosedAt)

	err = s.CreateSession(ctx, newSession("rsession-1", "user-2", "book-2", base))
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func testGetMissing(t *testing.T, s store.SessionStore) {
	_, err := s.GetSession(context.Background(), "rsession-missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, _, err = s.CloseSession(context.Background(), "rsession-missing", closeReq(time.Second, domain.CloseReasonStopped))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testSingleOpenPerPair(t *testing.T, s store.SessionStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, newSession("rsession-1", "user-1", "book-1", base)))

	err := s.CreateSession(ctx, newSession("rsession-2", "user-1", "book-1", base.Add(time.Minute)))
	assert.ErrorIs(t, err, store.ErrOpenSessionExists)

	// Other pairings are independent.
	require.NoError(t, s.CreateSession(ctx, newSession("rsession-3", "user-1", "book-2", base)))
	require.NoError(t, s.CreateSession(ctx, newSession("rsession-4", "user-2", "book-1", base)))

	// Once closed, the pairing may open again.
	_, _, err = s.CloseSession(ctx, "rsession-1", closeReq(time.Minute, domain.CloseReasonStopped))
	require.NoError(t, err)
	require.NoError(t, s.CreateSession(ctx, newSession("rsession-2", "user-1", "book-1", base.Add(time.Minute))))
}

func testFindOpenSession(t *testing.T, s store.SessionStore) {
	ctx := context.Background()

	got, err := s.FindOpenSession(ctx, "user-1", "book-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.CreateSession(ctx, newSession("rsession-1", "user-1", "book-1", base)))
	got, err = s.FindOpenSession(ctx, "user-1", "book-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "rsession-1", got.ID)

	_, _, err = s.CloseSession(ctx, "rsession-1", closeReq(time.Minute, domain.CloseReasonSwept))
	require.NoError(t, err)
	got, err = s.FindOpenSession(ctx, "user-1", "book-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testCloseUpdatesAggregate(t *testing.T, s store.SessionStore) {
	ctx := context.Background()

	agg, err := s.GetAggregate(ctx, "user-1", "book-1")
	require.NoError(t, err)
	assert.Nil(t, agg)

	require.NoError(t, s.CreateSession(ctx, newSession("rsession-1", "user-1", "book-1", base)))
	closed, agg, err := s.CloseSession(ctx, "rsession-1", closeReq(90*time.Second, domain.CloseReasonStopped))
	require.NoError(t, err)
	assert.False(t, closed.IsOpen)
	assert.Equal(t, 90*time.Second, closed.Elapsed)
	assert.Equal(t, domain.CloseReasonStopped, closed.CloseReason)
	require.NotNil(t, closed.ClosedAt)
	assert.Equal(t, 90*time.Second, agg.TotalElapsed)

	require.NoError(t, s.CreateSession(ctx, newSession("rsession-2", "user-1", "book-1", base.Add(time.Hour))))
	_, agg, err = s.CloseSession(ctx, "rsession-2", closeReq(30*time.Second, domain.CloseReasonSwept))
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, agg.TotalElapsed)
	assert.Equal(t, int64(2), agg.SessionsClosed)

	stored, err := s.GetAggregate(ctx, "user-1", "book-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 120*time.Second, stored.TotalElapsed)

	got, err := s.GetSession(ctx, "rsession-2")
	require.NoError(t, err)
	assert.False(t, got.IsOpen)
	assert.Equal(t, domain.CloseReasonSwept, got.CloseReason)
}

func testCloseTwice(t *testing.T, s store.SessionStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, newSession("rsession-1", "user-1", "book-1", base)))

	_, _, err := s.CloseSession(ctx, "rsession-1", closeReq(time.Minute, domain.CloseReasonStopped))
	require.NoError(t, err)

	_, _, err = s.CloseSession(ctx, "rsession-1", closeReq(time.Hour, domain.CloseReasonSwept))
	assert.ErrorIs(t, err, store.ErrSessionClosed)

	got, err := s.GetSession(ctx, "rsession-1")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, got.Elapsed)
	assert.Equal(t, domain.CloseReasonStopped, got.CloseReason)

	agg, err := s.GetAggregate(ctx, "user-1", "book-1")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, agg.TotalElapsed)
}

func testConcurrentClose(t *testing.T, s store.SessionStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, newSession("rsession-1", "user-1", "book-1", base)))

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		closedErr int
		other     []error
	)
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := s.CloseSession(ctx, "rsession-1", closeReq(time.Duration(i+1)*time.Second, domain.CloseReasonSwept))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, store.ErrSessionClosed):
				closedErr++
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 1, successes)
	assert.Equal(t, writers-1, closedErr)

	got, err := s.GetSession(ctx, "rsession-1")
	require.NoError(t, err)
	agg, err := s.GetAggregate(ctx, "user-1", "book-1")
	require.NoError(t, err)
	assert.Equal(t, got.Elapsed, agg.TotalElapsed)
	assert.Equal(t, int64(1), agg.SessionsClosed)
}

func testListPairSessionsOrdered(t *testing.T, s store.SessionStore) {
	ctx := context.Background()

	// Insert out of order; the store sorts by creation time.
	offsets := []int{3, 0, 2, 1}
	for _, off := range offsets {
		id := fmt.Sprintf("rsession-%d", off)
		require.NoError(t, s.CreateSession(ctx, newSession(id, "user-1", "book-1", base.Add(time.Duration(off)*time.Minute))))
		_, _, err := s.CloseSession(ctx, id, closeReq(time.Second, domain.CloseReasonStopped))
		require.NoError(t, err)
	}
	require.NoError(t, s.CreateSession(ctx, newSession("rsession-other", "user-1", "book-2", base)))

	sessions, err := s.ListPairSessions(ctx, "user-1", "book-1")
	require.NoError(t, err)
	require.Len(t, sessions, 4)
	for i, rs := range sessions {
		assert.Equal(t, fmt.Sprintf("rsession-%d", i), rs.ID)
	}
}

func testListOpenSessions(t *testing.T, s store.SessionStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, newSession("rsession-a", "user-1", "book-1", base)))
	require.NoError(t, s.CreateSession(ctx, newSession("rsession-b", "user-2", "book-1", base.Add(10*time.Minute))))
	require.NoError(t, s.CreateSession(ctx, newSession("rsession-c", "user-3", "book-1", base.Add(20*time.Minute))))
	_, _, err := s.CloseSession(ctx, "rsession-b", closeReq(time.Second, domain.CloseReasonStopped))
	require.NoError(t, err)

	all, err := s.ListOpenSessions(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "rsession-a", all[0].ID)
	assert.Equal(t, "rsession-c", all[1].ID)

	older, err := s.ListOpenSessions(ctx, base.Add(15*time.Minute))
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, "rsession-a", older[0].ID)
}

func testListUserSessionsBetween(t *testing.T, s store.SessionStore) {
	ctx := context.Background()
	dayStart := base.Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	require.NoError(t, s.CreateSession(ctx, newSession("rsession-before", "user-1", "book-1", dayStart.Add(-time.Second))))
	_, _, err := s.CloseSession(ctx, "rsession-before", closeReq(time.Second, domain.CloseReasonStopped))
	require.NoError(t, err)
	require.NoError(t, s.CreateSession(ctx, newSession("rsession-start", "user-1", "book-1", dayStart)))
	_, _, err = s.CloseSession(ctx, "rsession-start", closeReq(time.Second, domain.CloseReasonStopped))
	require.NoError(t, err)
	require.NoError(t, s.CreateSession(ctx, newSession("rsession-late", "user-1", "book-2", dayEnd.Add(-time.Second))))
	require.NoError(t, s.CreateSession(ctx, newSession("rsession-next", "user-1", "book-3", dayEnd)))
	require.NoError(t, s.CreateSession(ctx, newSession("rsession-other-user", "user-2", "book-1", dayStart.Add(time.Hour))))

	sessions, err := s.ListUserSessionsBetween(ctx, "user-1", dayStart, dayEnd)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "rsession-start", sessions[0].ID)
	assert.Equal(t, "rsession-late", sessions[1].ID)
}

func testDeleteKeepsAggregate(t *testing.T, s store.SessionStore) {
	ctx := context.Background()
	for i := range 3 {
		id := fmt.Sprintf("rsession-%d", i)
		require.NoError(t, s.CreateSession(ctx, newSession(id, "user-1", "book-1", base.Add(time.Duration(i)*time.Minute))))
		_, _, err := s.CloseSession(ctx, id, closeReq(10*time.Second, domain.CloseReasonStopped))
		require.NoError(t, err)
	}

	n, err := s.DeleteSessions(ctx, []string{"rsession-0", "rsession-1", "rsession-missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.GetSession(ctx, "rsession-0")
	assert.ErrorIs(t, err, store.ErrNotFound)

	remaining, err := s.ListPairSessions(ctx, "user-1", "book-1")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "rsession-2", remaining[0].ID)

	agg, err := s.GetAggregate(ctx, "user-1", "book-1")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, agg.TotalElapsed)

	n, err = s.DeleteSessions(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
