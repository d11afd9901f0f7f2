package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/readtime-server/internal/domain"
	domainerrors "github.com/listenupapp/readtime-server/internal/errors"
	"github.com/listenupapp/readtime-server/internal/store"
	"github.com/listenupapp/readtime-server/internal/store/sqlite"
)

// t0 is the fake clock's starting instant: 2024-03-05 09:00 UTC.
var t0 = time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

// testCatalog knows a fixed set of users and books. Books listed in
// broken fail to resolve with an internal error.
type testCatalog struct {
	users  map[string]bool
	books  map[string]string
	broken map[string]bool
}

func newTestCatalog() *testCatalog {
	return &testCatalog{
		users: map[string]bool{"u1": true, "u2": true},
		books: map[string]string{
			"b1": "A Wizard of Earthsea",
			"b2": "The Tombs of Atuan",
			"b3": "The Farthest Shore",
		},
		broken: map[string]bool{},
	}
}

func (c *testCatalog) ResolveUser(_ context.Context, userID string) (*domain.User, error) {
	if !c.users[userID] {
		return nil, domainerrors.NotFoundf("user %s not found", userID)
	}
	return &domain.User{ID: userID}, nil
}

func (c *testCatalog) ResolveBook(_ context.Context, bookID string) (*domain.Book, error) {
	if c.broken[bookID] {
		return nil, domainerrors.Internalf("catalog unreachable")
	}
	title, ok := c.books[bookID]
	if !ok {
		return nil, domainerrors.NotFoundf("book %s not found", bookID)
	}
	return &domain.Book{ID: bookID, Title: title, CoverURL: "https://covers.example/" + bookID}, nil
}

type testEnv struct {
	store     store.SessionStore
	clock     *clockwork.FakeClock
	catalog   *testCatalog
	sessions  *ReadingSessionService
	retention *RetentionEnforcer
	sweeper   *Sweeper
	calendar  *CalendarService
}

func setupTestStore(t *testing.T) store.SessionStore {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "badger"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// backends opens each SessionStore implementation in a fresh directory.
var backends = []struct {
	name string
	open func(t *testing.T) store.SessionStore
}{
	{"badger", setupTestStore},
	{"sqlite", func(t *testing.T) store.SessionStore {
		s, err := sqlite.Open(filepath.Join(t.TempDir(), "readtime.db"), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}},
}

// forEachBackend runs fn as a subtest against every store backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, env *testEnv)) {
	t.Helper()
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, newTestEnvWithStore(t, b.open(t)))
		})
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, setupTestStore(t))
}

func newTestEnvWithStore(t *testing.T, st store.SessionStore) *testEnv {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	clock := clockwork.NewFakeClockAt(t0)
	cat := newTestCatalog()

	retention := NewRetentionEnforcer(st, DefaultRetentionMax, logger)
	sessions := NewReadingSessionService(st, cat, retention, clock, DefaultMaxElapsed, logger)

	return &testEnv{
		store:     st,
		clock:     clock,
		catalog:   cat,
		sessions:  sessions,
		retention: retention,
		sweeper:   NewSweeper(st, sessions, clock, SweeperConfig{Interval: time.Minute}, logger),
		calendar:  NewCalendarService(st, cat, time.UTC, logger),
	}
}

// readFor starts a session, advances the clock by d, and stops it reporting d.
func (e *testEnv) readFor(t *testing.T, userID, bookID string, d time.Duration) *domain.ReadingSession {
	t.Helper()
	ctx := context.Background()

	started, err := e.sessions.StartSession(ctx, userID, bookID)
	require.NoError(t, err)
	e.clock.Advance(d)

	closed, err := e.sessions.StopSession(ctx, started.Session.ID, d)
	require.NoError(t, err)
	return closed
}

func (e *testEnv) aggregate(t *testing.T, userID, bookID string) *domain.ReadingAggregate {
	t.Helper()
	agg, err := e.sessions.GetAggregate(context.Background(), userID, bookID)
	require.NoError(t, err)
	return agg
}

func (e *testEnv) openCount(t *testing.T, userID, bookID string) int {
	t.Helper()
	sessions, err := e.store.ListPairSessions(context.Background(), userID, bookID)
	require.NoError(t, err)
	n := 0
	for _, s := range sessions {
		if s.IsOpen {
			n++
		}
	}
	return n
}

// advanceTo moves the fake clock forward to at.
func (e *testEnv) advanceTo(at time.Time) {
	e.clock.Advance(at.Sub(e.clock.Now()))
}
