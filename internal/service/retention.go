package service

import (
	"context"
	"log/slog"

	"github.com/listenupapp/readtime-server/internal/metrics"
	"github.com/listenupapp/readtime-server/internal/store"
)

// DefaultRetentionMax is how many sessions are kept per user+book.
const DefaultRetentionMax = 10

// RetentionEnforcer caps the stored sessions of each user+book pairing.
// It only deletes session rows; aggregates are never touched.
type RetentionEnforcer struct {
	store  store.SessionStore
	max    int
	logger *slog.Logger
}

// NewRetentionEnforcer creates a retention enforcer keeping max sessions per
// pairing. A non-positive max uses DefaultRetentionMax.
func NewRetentionEnforcer(st store.SessionStore, maxSessions int, logger *slog.Logger) *RetentionEnforcer {
	if maxSessions <= 0 {
		maxSessions = DefaultRetentionMax
	}
	return &RetentionEnforcer{store: st, max: maxSessions, logger: logger}
}

// Enforce deletes the oldest sessions of user+book until at most max remain.
// Open sessions are never evicted. Returns how many sessions were deleted.
func (r *RetentionEnforcer) Enforce(ctx context.Context, userID, bookID string) (int, error) {
	sessions, err := r.store.ListPairSessions(ctx, userID, bookID)
	if err != nil {
		return 0, storeError(err, "list sessions for retention")
	}

	surplus := len(sessions) - r.max
	if surplus <= 0 {
		return 0, nil
	}

	// Sessions are ascending by CreatedAt, so the first closed ones are the oldest.
	evict := make([]string, 0, surplus)
	for _, s := range sessions {
		if len(evict) == surplus {
			break
		}
		if s.IsOpen {
			continue
		}
		evict = append(evict, s.ID)
	}

	deleted, err := r.store.DeleteSessions(ctx, evict)
	if err != nil {
		return 0, storeError(err, "delete evicted sessions")
	}

	metrics.RetentionEvictions.Add(float64(deleted))
	r.logger.Debug("retention evicted sessions",
		"user_id", userID,
		"book_id", bookID,
		"evicted", deleted,
		"kept", len(sessions)-deleted)

	return deleted, nil
}
