package domain

import "time"

// ReadingAggregate is the lifetime reading total of a user on a book.
// TotalElapsed only ever grows: each close adds its elapsed time exactly once,
// and deleting old sessions never touches it.
type ReadingAggregate struct {
	UserID         string        `json:"user_id"`
	BookID         string        `json:"book_id"`
	TotalElapsed   time.Duration `json:"total_elapsed"`
	SessionsClosed int64         `json:"sessions_closed"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// NewReadingAggregate returns an empty aggregate for a user+book pairing.
func NewReadingAggregate(userID, bookID string) *ReadingAggregate {
	return &ReadingAggregate{UserID: userID, BookID: bookID}
}

// Add records one closed session.
func (a *ReadingAggregate) Add(elapsed time.Duration, now time.Time) {
	a.TotalElapsed += elapsed
	a.SessionsClosed++
	a.UpdatedAt = now.UTC()
}

// TotalSeconds returns the total as whole seconds.
func (a *ReadingAggregate) TotalSeconds() int64 {
	return int64(a.TotalElapsed / time.Second)
}
