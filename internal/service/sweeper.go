package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/listenupapp/readtime-server/internal/domain"
	domainerrors "github.com/listenupapp/readtime-server/internal/errors"
	"github.com/listenupapp/readtime-server/internal/id"
	"github.com/listenupapp/readtime-server/internal/metrics"
	"github.com/listenupapp/readtime-server/internal/store"
)

// DefaultSweepInterval is the period between reconciliation sweeps.
const DefaultSweepInterval = 60 * time.Second

// ErrSweepInProgress is returned by Sweep when another sweep is running.
var ErrSweepInProgress = errors.New("sweep already in progress")

// SessionCloser closes open sessions with a server-computed elapsed time.
type SessionCloser interface {
	ForceClose(ctx context.Context, session *domain.ReadingSession, reason domain.CloseReason) (*domain.ReadingSession, error)
}

// SweepResult summarizes one sweep run.
type SweepResult struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Scanned   int           `json:"scanned"`
	Closed    int           `json:"closed"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
}

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	Interval time.Duration
	// MinAge leaves sessions younger than this open. Zero sweeps every open session.
	MinAge time.Duration
}

// Sweeper closes sessions left open by clients that never sent a stop.
// A session left open is closed within one interval.
type Sweeper struct {
	store  store.SessionStore
	closer SessionCloser
	clock  clockwork.Clock
	cfg    SweeperConfig
	logger *slog.Logger

	running sync.Mutex

	lastMu sync.RWMutex
	last   *SweepResult

	stop     chan struct{}
	stopOnce sync.Once
}

// NewSweeper creates a sweeper. A zero interval uses DefaultSweepInterval.
func NewSweeper(st store.SessionStore, closer SessionCloser, clock clockwork.Clock, cfg SweeperConfig, logger *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:  st,
		closer: closer,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
		stop:   make(chan struct{}),
	}
}

// Sweep closes every open session older than MinAge as swept.
// Sessions closed concurrently by a stop are skipped; a failure on one
// session is logged and the sweep moves on. Returns ErrSweepInProgress
// without doing anything if another sweep holds the lock.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	if !s.running.TryLock() {
		metrics.SweepRuns.WithLabelValues("skipped").Inc()
		return nil, ErrSweepInProgress
	}
	defer s.running.Unlock()

	started := s.clock.Now()
	result := &SweepResult{RunID: id.NewRunID(), StartedAt: started.UTC()}
	logger := s.logger.With("sweep_id", result.RunID)

	var cutoff time.Time
	if s.cfg.MinAge > 0 {
		cutoff = started.Add(-s.cfg.MinAge)
	}

	open, err := s.store.ListOpenSessions(ctx, cutoff)
	if err != nil {
		metrics.SweepRuns.WithLabelValues("failed").Inc()
		logger.Error("sweep could not list open sessions", "error", err)
		return nil, storeError(err, "list open sessions")
	}
	result.Scanned = len(open)

	for _, session := range open {
		if ctx.Err() != nil {
			break
		}

		_, err := s.closer.ForceClose(ctx, session, domain.CloseReasonSwept)
		switch {
		case err == nil:
			result.Closed++
			metrics.SweepSessions.WithLabelValues("closed").Inc()
		case errors.Is(err, domainerrors.ErrSessionAlreadyClosed), errors.Is(err, domainerrors.ErrNotFound):
			result.Skipped++
			metrics.SweepSessions.WithLabelValues("skipped").Inc()
			logger.Debug("sweep skipped session closed concurrently", "session_id", session.ID)
		default:
			result.Failed++
			metrics.SweepSessions.WithLabelValues("failed").Inc()
			logger.Error("sweep failed to close session",
				"session_id", session.ID,
				"user_id", session.UserID,
				"book_id", session.BookID,
				"error", err)
		}
	}

	result.Duration = s.clock.Since(started)
	metrics.SweepRuns.WithLabelValues("completed").Inc()
	metrics.SweepDuration.Observe(result.Duration.Seconds())
	metrics.SweepLastSuccess.Set(float64(s.clock.Now().Unix()))

	if result.Scanned > 0 {
		logger.Info("sweep completed",
			"scanned", result.Scanned,
			"closed", result.Closed,
			"skipped", result.Skipped,
			"failed", result.Failed,
			"duration", result.Duration)
	}

	s.lastMu.Lock()
	s.last = result
	s.lastMu.Unlock()

	return result, ctx.Err()
}

// LastRun returns the result of the most recent completed sweep, or nil.
func (s *Sweeper) LastRun() *SweepResult {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	if s.last == nil {
		return nil
	}
	r := *s.last
	return &r
}

// Interval returns the configured sweep period.
func (s *Sweeper) Interval() time.Duration {
	return s.cfg.Interval
}

// Run sweeps once immediately and then every interval until ctx is done or
// Stop is called. Errors are logged, never returned.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("sweeper started", "interval", s.cfg.Interval, "min_age", s.cfg.MinAge)

	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-s.stop:
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.Chan():
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("sweep did not complete", "error", err)
	}
}

// Stop ends Run. Safe to call more than once.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}
