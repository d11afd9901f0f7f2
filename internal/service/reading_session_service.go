package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/listenupapp/readtime-server/internal/catalog"
	"github.com/listenupapp/readtime-server/internal/domain"
	domainerrors "github.com/listenupapp/readtime-server/internal/errors"
	"github.com/listenupapp/readtime-server/internal/id"
	"github.com/listenupapp/readtime-server/internal/metrics"
	"github.com/listenupapp/readtime-server/internal/store"
	"github.com/listenupapp/readtime-server/internal/validation"
)

// maxStartAttempts bounds how often StartSession retries after losing the
// open-session race to a concurrent start on the same user+book.
const maxStartAttempts = 3

// DefaultMaxElapsed is the largest client-reported elapsed time accepted by StopSession.
const DefaultMaxElapsed = 24 * time.Hour

// StartResult is returned by StartSession.
type StartResult struct {
	Session *domain.ReadingSession
	// SupersededSessionID is the open session this start closed, if any.
	SupersededSessionID string
}

// SessionHistory is the retained history of a user+book, newest first.
type SessionHistory struct {
	Sessions  []*domain.ReadingSession `json:"sessions"`
	Aggregate *domain.ReadingAggregate `json:"aggregate"`
}

type pairCommand struct {
	UserID string `json:"user_id" validate:"entityid"`
	BookID string `json:"book_id" validate:"entityid"`
}

// ReadingSessionService manages reading sessions: opening them, closing them
// on client stop or on server-side supersede/sweep, and keeping per
// user+book totals.
type ReadingSessionService struct {
	store      store.SessionStore
	catalog    catalog.Catalog
	retention  *RetentionEnforcer
	validator  *validation.Validator
	clock      clockwork.Clock
	logger     *slog.Logger
	maxElapsed time.Duration
}

// NewReadingSessionService creates a new reading session service.
// A zero maxElapsed uses DefaultMaxElapsed.
func NewReadingSessionService(
	st store.SessionStore,
	cat catalog.Catalog,
	retention *RetentionEnforcer,
	clock clockwork.Clock,
	maxElapsed time.Duration,
	logger *slog.Logger,
) *ReadingSessionService {
	if maxElapsed <= 0 {
		maxElapsed = DefaultMaxElapsed
	}
	return &ReadingSessionService{
		store:      st,
		catalog:    cat,
		retention:  retention,
		validator:  validation.New(),
		clock:      clock,
		logger:     logger,
		maxElapsed: maxElapsed,
	}
}

// StartSession opens a new session for user+book. An open session for the
// same pairing is closed first as superseded, with its elapsed time taken
// from the server clock.
func (s *ReadingSessionService) StartSession(ctx context.Context, userID, bookID string) (*StartResult, error) {
	if err := s.resolvePair(ctx, userID, bookID); err != nil {
		return nil, err
	}

	result := &StartResult{}
	for attempt := 1; attempt <= maxStartAttempts; attempt++ {
		open, err := s.store.FindOpenSession(ctx, userID, bookID)
		if err != nil {
			return nil, storeError(err, "find open session")
		}

		if open != nil {
			_, err := s.ForceClose(ctx, open, domain.CloseReasonSuperseded)
			switch {
			case err == nil:
				result.SupersededSessionID = open.ID
			case errors.Is(err, domainerrors.ErrSessionAlreadyClosed):
				// Closed concurrently by a stop or the sweeper.
			default:
				return nil, err
			}
		}

		sessionID, err := id.NewSessionID()
		if err != nil {
			return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "generate session id")
		}
		session := domain.NewReadingSession(sessionID, userID, bookID, s.clock.Now())

		err = s.store.CreateSession(ctx, session)
		if errors.Is(err, store.ErrOpenSessionExists) {
			s.logger.Debug("lost open-session race, retrying start",
				"user_id", userID,
				"book_id", bookID,
				"attempt", attempt)
			continue
		}
		if err != nil {
			return nil, storeError(err, "create session")
		}

		metrics.SessionsStarted.WithLabelValues(metrics.Bool(result.SupersededSessionID != "")).Inc()
		s.logger.Info("reading session started",
			"session_id", session.ID,
			"user_id", userID,
			"book_id", bookID,
			"superseded_session_id", result.SupersededSessionID)

		result.Session = session
		return result, nil
	}

	return nil, domainerrors.Conflictf("could not open a session for user %s book %s: concurrent starts", userID, bookID)
}

// StopSession closes an open session with the client-reported elapsed time.
func (s *ReadingSessionService) StopSession(ctx context.Context, sessionID string, reported time.Duration) (*domain.ReadingSession, error) {
	closed, err := s.stopSession(ctx, sessionID, reported)
	if err != nil {
		var derr *domainerrors.Error
		if errors.As(err, &derr) {
			metrics.StopRejections.WithLabelValues(string(derr.Code)).Inc()
		}
		return nil, err
	}
	return closed, nil
}

func (s *ReadingSessionService) stopSession(ctx context.Context, sessionID string, reported time.Duration) (*domain.ReadingSession, error) {
	if err := s.validator.ValidateID("session_id", sessionID); err != nil {
		return nil, err
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, storeError(err, "get session")
	}
	if !session.IsOpen {
		return nil, domainerrors.SessionAlreadyClosedf("session %s already closed", sessionID)
	}

	if reported < 0 {
		return nil, domainerrors.InvalidElapsedf("elapsed time cannot be negative")
	}
	if reported > s.maxElapsed {
		return nil, domainerrors.InvalidElapsedf("elapsed time %s exceeds maximum %s", reported, s.maxElapsed)
	}

	return s.close(ctx, session, reported.Truncate(time.Second), domain.CloseReasonStopped)
}

// ForceClose closes an open session with elapsed = now - CreatedAt.
// It is the close path for superseded and swept sessions.
func (s *ReadingSessionService) ForceClose(ctx context.Context, session *domain.ReadingSession, reason domain.CloseReason) (*domain.ReadingSession, error) {
	if !reason.ServerComputed() {
		return nil, domainerrors.Internalf("force close with client reason %q", reason)
	}
	return s.close(ctx, session, session.ServerElapsed(s.clock.Now()), reason)
}

// close is the single open->closed transition. The store applies it only
// if the session is still open and adds elapsed to the aggregate in the
// same transaction; retention runs afterwards.
func (s *ReadingSessionService) close(ctx context.Context, session *domain.ReadingSession, elapsed time.Duration, reason domain.CloseReason) (*domain.ReadingSession, error) {
	closed, agg, err := s.store.CloseSession(ctx, session.ID, domain.CloseRequest{
		Elapsed:  elapsed,
		Reason:   reason,
		ClosedAt: s.clock.Now(),
	})
	switch {
	case errors.Is(err, store.ErrSessionClosed):
		return nil, domainerrors.SessionAlreadyClosedf("session %s already closed", session.ID)
	case err != nil:
		return nil, storeError(err, "close session")
	}

	metrics.SessionsClosed.WithLabelValues(string(reason)).Inc()
	metrics.SessionElapsedSeconds.WithLabelValues(string(reason)).Observe(elapsed.Seconds())
	s.logger.Info("reading session closed",
		"session_id", closed.ID,
		"user_id", closed.UserID,
		"book_id", closed.BookID,
		"reason", reason,
		"elapsed_seconds", closed.ElapsedSeconds(),
		"total_seconds", agg.TotalSeconds())

	// The close is committed; a retention failure must not turn it into an
	// error the client would retry into SessionAlreadyClosed.
	if _, err := s.retention.Enforce(ctx, closed.UserID, closed.BookID); err != nil {
		metrics.RetentionErrors.Inc()
		s.logger.Error("retention failed after close",
			"session_id", closed.ID,
			"user_id", closed.UserID,
			"book_id", closed.BookID,
			"error", err)
	}

	return closed, nil
}

// GetSession returns a session by ID.
func (s *ReadingSessionService) GetSession(ctx context.Context, sessionID string) (*domain.ReadingSession, error) {
	if err := s.validator.ValidateID("session_id", sessionID); err != nil {
		return nil, err
	}
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, storeError(err, "get session")
	}
	return session, nil
}

// ListSessions returns the retained sessions of user+book, newest first,
// together with the lifetime aggregate. Unknown users and books are NotFound.
func (s *ReadingSessionService) ListSessions(ctx context.Context, userID, bookID string) (*SessionHistory, error) {
	if err := s.resolvePair(ctx, userID, bookID); err != nil {
		return nil, err
	}

	sessions, err := s.store.ListPairSessions(ctx, userID, bookID)
	if err != nil {
		return nil, storeError(err, "list sessions")
	}
	slices.Reverse(sessions)
	if sessions == nil {
		sessions = []*domain.ReadingSession{}
	}

	agg, err := s.GetAggregate(ctx, userID, bookID)
	if err != nil {
		return nil, err
	}

	return &SessionHistory{Sessions: sessions, Aggregate: agg}, nil
}

// GetAggregate returns the lifetime total of user+book. A pairing with no
// closed session yet yields a zero aggregate.
func (s *ReadingSessionService) GetAggregate(ctx context.Context, userID, bookID string) (*domain.ReadingAggregate, error) {
	if err := s.validator.Validate(pairCommand{UserID: userID, BookID: bookID}); err != nil {
		return nil, err
	}
	agg, err := s.store.GetAggregate(ctx, userID, bookID)
	if err != nil {
		return nil, storeError(err, "get aggregate")
	}
	if agg == nil {
		agg = domain.NewReadingAggregate(userID, bookID)
	}
	return agg, nil
}

// resolvePair validates the ids and checks both against the catalog.
func (s *ReadingSessionService) resolvePair(ctx context.Context, userID, bookID string) error {
	if err := s.validator.Validate(pairCommand{UserID: userID, BookID: bookID}); err != nil {
		return err
	}
	if _, err := s.catalog.ResolveUser(ctx, userID); err != nil {
		return err
	}
	if _, err := s.catalog.ResolveBook(ctx, bookID); err != nil {
		return err
	}
	return nil
}

// storeError translates store failures into domain errors.
func storeError(err error, op string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domainerrors.NotFound("session not found")
	case errors.Is(err, store.ErrInvalidInput):
		return domainerrors.Validation(err.Error())
	default:
		return domainerrors.Unavailable(err, op)
	}
}
