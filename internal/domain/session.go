package domain

import "time"

// CloseReason records which path closed a reading session and therefore
// where its elapsed time came from.
type CloseReason string

// CloseReason values.
const (
	// CloseReasonStopped: the client stopped the session and reported the elapsed time.
	CloseReasonStopped CloseReason = "stopped"
	// CloseReasonSuperseded: a new start for the same user+book closed it; elapsed is server computed.
	CloseReasonSuperseded CloseReason = "superseded"
	// CloseReasonSwept: the reconciliation sweeper closed it; elapsed is server computed.
	CloseReasonSwept CloseReason = "swept"
)

// Valid returns true if the reason is a recognized value.
func (r CloseReason) Valid() bool {
	switch r {
	case CloseReasonStopped, CloseReasonSuperseded, CloseReasonSwept:
		return true
	default:
		return false
	}
}

// ServerComputed reports whether the elapsed time for this reason is
// derived from the server clock rather than reported by the client.
func (r CloseReason) ServerComputed() bool {
	return r == CloseReasonSuperseded || r == CloseReasonSwept
}

// ReadingSession is one timed reading interval of a user on a book.
// A user has at most one open session per book at a time.
// Once closed a session is never reopened.
type ReadingSession struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	BookID      string        `json:"book_id"`
	CreatedAt   time.Time     `json:"created_at"`
	Elapsed     time.Duration `json:"elapsed"`
	IsOpen      bool          `json:"is_open"`
	ClosedAt    *time.Time    `json:"closed_at,omitempty"`
	CloseReason CloseReason   `json:"close_reason,omitempty"`
}

// NewReadingSession creates an open session with zero elapsed time.
func NewReadingSession(id, userID, bookID string, now time.Time) *ReadingSession {
	return &ReadingSession{
		ID:        id,
		UserID:    userID,
		BookID:    bookID,
		CreatedAt: now.UTC(),
		Elapsed:   0,
		IsOpen:    true,
	}
}

// Close marks the session closed with the given elapsed time.
// Callers must only close open sessions; the stores enforce this atomically.
func (s *ReadingSession) Close(elapsed time.Duration, reason CloseReason, now time.Time) {
	closedAt := now.UTC()
	s.Elapsed = elapsed
	s.IsOpen = false
	s.ClosedAt = &closedAt
	s.CloseReason = reason
}

// ServerElapsed returns the wall-clock time since the session was created,
// truncated to whole seconds. Clock skew never yields a negative value.
func (s *ReadingSession) ServerElapsed(now time.Time) time.Duration {
	return ElapsedBetween(s.CreatedAt, now)
}

// ElapsedBetween returns end-start truncated to whole seconds, floored at zero.
func ElapsedBetween(start, end time.Time) time.Duration {
	d := end.Sub(start).Truncate(time.Second)
	if d < 0 {
		return 0
	}
	return d
}

// ElapsedSeconds returns the elapsed time as whole seconds.
func (s *ReadingSession) ElapsedSeconds() int64 {
	return int64(s.Elapsed / time.Second)
}

// CloseRequest carries the fields written when a session is closed.
type CloseRequest struct {
	Elapsed  time.Duration
	Reason   CloseReason
	ClosedAt time.Time
}
