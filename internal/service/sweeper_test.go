package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/readtime-server/internal/domain"
	domainerrors "github.com/listenupapp/readtime-server/internal/errors"
	"github.com/listenupapp/readtime-server/internal/store"
)

// A sweep at T+90s closes the session; a late stop is rejected.
func TestSweep_ClosesAbandonedSession(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		ctx := context.Background()

		started, err := env.sessions.StartSession(ctx, "u1", "b1")
		require.NoError(t, err)
		env.clock.Advance(90 * time.Second)

		result, err := env.sweeper.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Scanned)
		assert.Equal(t, 1, result.Closed)
		assert.NotEmpty(t, result.RunID)

		swept, err := env.sessions.GetSession(ctx, started.Session.ID)
		require.NoError(t, err)
		assert.False(t, swept.IsOpen)
		assert.Equal(t, 90*time.Second, swept.Elapsed)
		assert.Equal(t, domain.CloseReasonSwept, swept.CloseReason)

		_, err = env.sessions.StopSession(ctx, started.Session.ID, 100*time.Second)
		assert.ErrorIs(t, err, domainerrors.ErrSessionAlreadyClosed)

		agg := env.aggregate(t, "u1", "b1")
		assert.Equal(t, 90*time.Second, agg.TotalElapsed)
		assert.Equal(t, int64(1), agg.SessionsClosed)

		// The pairing is free again.
		_, err = env.sessions.StartSession(ctx, "u1", "b1")
		assert.NoError(t, err)
	})
}

func TestSweep_NothingOpen(t *testing.T) {
	env := newTestEnv(t)
	env.readFor(t, "u1", "b1", time.Minute)

	result, err := env.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Scanned)
	assert.Zero(t, result.Closed)

	last := env.sweeper.LastRun()
	require.NotNil(t, last)
	assert.Equal(t, result.RunID, last.RunID)
}

func TestSweep_MinAgeLeavesYoungSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	old, err := env.sessions.StartSession(ctx, "u1", "b1")
	require.NoError(t, err)
	env.clock.Advance(10 * time.Minute)
	young, err := env.sessions.StartSession(ctx, "u1", "b2")
	require.NoError(t, err)

	sweeper := NewSweeper(env.store, env.sessions, env.clock,
		SweeperConfig{Interval: time.Minute, MinAge: 5 * time.Minute}, slog.New(slog.DiscardHandler))
	result, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Closed)

	got, err := env.sessions.GetSession(ctx, old.Session.ID)
	require.NoError(t, err)
	assert.False(t, got.IsOpen)

	got, err = env.sessions.GetSession(ctx, young.Session.ID)
	require.NoError(t, err)
	assert.True(t, got.IsOpen)
}

// A stop racing the sweeper closes the session exactly once.
func TestSweep_RacesStop(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			for range 5 {
				env := newTestEnvWithStore(t, b.open(t))
				ctx := context.Background()

				started, err := env.sessions.StartSession(ctx, "u1", "b1")
				require.NoError(t, err)
				env.clock.Advance(2 * time.Minute)

				var (
					wg       sync.WaitGroup
					stopErr  error
					sweepRes *SweepResult
					sweepErr error
				)
				wg.Go(func() { _, stopErr = env.sessions.StopSession(ctx, started.Session.ID, time.Minute) })
				wg.Go(func() { sweepRes, sweepErr = env.sweeper.Sweep(ctx) })
				wg.Wait()

				require.NoError(t, sweepErr)
				if stopErr != nil {
					assert.ErrorIs(t, stopErr, domainerrors.ErrSessionAlreadyClosed)
				}
				// Exactly one of the two closed it.
				stopWon := stopErr == nil
				assert.Equal(t, stopWon, sweepRes.Closed == 0)

				agg := env.aggregate(t, "u1", "b1")
				assert.Equal(t, int64(1), agg.SessionsClosed)
				if stopWon {
					assert.Equal(t, time.Minute, agg.TotalElapsed)
				} else {
					assert.Equal(t, 2*time.Minute, agg.TotalElapsed)
				}
			}
		})
	}
}

// failingStore fails CloseSession for one session id.
type failingStore struct {
	store.SessionStore
	failID string
}

func (f *failingStore) CloseSession(ctx context.Context, id string, req domain.CloseRequest) (*domain.ReadingSession, *domain.ReadingAggregate, error) {
	if id == f.failID {
		return nil, nil, errors.New("disk unavailable")
	}
	return f.SessionStore.CloseSession(ctx, id, req)
}

func TestSweep_IsolatesFailures(t *testing.T) {
	fs := &failingStore{SessionStore: setupTestStore(t)}
	env := newTestEnvWithStore(t, fs)
	ctx := context.Background()

	var ids []string
	for _, book := range []string{"b1", "b2", "b3"} {
		r, err := env.sessions.StartSession(ctx, "u1", book)
		require.NoError(t, err)
		ids = append(ids, r.Session.ID)
		env.clock.Advance(time.Second)
	}
	fs.failID = ids[1]

	result, err := env.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 2, result.Closed)
	assert.Equal(t, 1, result.Failed)

	failed, err := env.sessions.GetSession(ctx, ids[1])
	require.NoError(t, err)
	assert.True(t, failed.IsOpen, "failed session stays open for the next sweep")

	// The next sweep picks it up once the store recovers.
	fs.failID = ""
	result, err = env.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Closed)
}

// blockingCloser holds the first ForceClose until released.
type blockingCloser struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingCloser) ForceClose(_ context.Context, s *domain.ReadingSession, _ domain.CloseReason) (*domain.ReadingSession, error) {
	close(b.entered)
	<-b.release
	return s, nil
}

func TestSweep_RejectsOverlap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.sessions.StartSession(ctx, "u1", "b1")
	require.NoError(t, err)

	closer := &blockingCloser{entered: make(chan struct{}), release: make(chan struct{})}
	sweeper := NewSweeper(env.store, closer, env.clock, SweeperConfig{}, slog.New(slog.DiscardHandler))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = sweeper.Sweep(ctx)
	}()
	<-closer.entered

	_, err = sweeper.Sweep(ctx)
	assert.ErrorIs(t, err, ErrSweepInProgress)

	close(closer.release)
	<-done
	assert.Equal(t, DefaultSweepInterval, sweeper.Interval())
}

func TestSweeper_RunTicks(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		env.sweeper.Run(ctx)
	}()

	// Initial sweep runs before the loop waits on the ticker.
	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))
	require.Eventually(t, func() bool { return env.sweeper.LastRun() != nil }, time.Second, 5*time.Millisecond)

	started, err := env.sessions.StartSession(ctx, "u1", "b1")
	require.NoError(t, err)
	env.clock.Advance(time.Minute)

	require.Eventually(t, func() bool {
		s, err := env.sessions.GetSession(ctx, started.Session.ID)
		return err == nil && !s.IsOpen
	}, 2*time.Second, 10*time.Millisecond)

	env.sweeper.Stop()
	<-done
}
