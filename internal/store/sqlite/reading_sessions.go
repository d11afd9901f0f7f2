package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/listenupapp/readtime-server/internal/domain"
	"github.com/listenupapp/readtime-server/internal/store"
)

// readingSessionColumns is the ordered list of columns selected in reading session queries.
// Must match the scan order in scanReadingSession.
const readingSessionColumns = `id, user_id, book_id, created_at, elapsed_seconds,
	is_open, closed_at, close_reason`

// scanReadingSession scans a sql.Row (or sql.Rows via its Scan method) into a domain.ReadingSession.
func scanReadingSession(scanner interface{ Scan(dest ...any) error }) (*domain.ReadingSession, error) {
	var rs domain.ReadingSession

	var (
		createdAt      string
		elapsedSeconds int64
		isOpen         int
		closedAt       sql.NullString
		closeReason    sql.NullString
	)

	err := scanner.Scan(
		&rs.ID,
		&rs.UserID,
		&rs.BookID,
		&createdAt,
		&elapsedSeconds,
		&isOpen,
		&closedAt,
		&closeReason,
	)
	if err != nil {
		return nil, err
	}

	rs.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	rs.ClosedAt, err = parseNullableTime(closedAt)
	if err != nil {
		return nil, err
	}

	rs.Elapsed = time.Duration(elapsedSeconds) * time.Second
	rs.IsOpen = isOpen != 0
	if closeReason.Valid && closeReason.String != "" {
		rs.CloseReason = domain.CloseReason(closeReason.String)
		if !rs.CloseReason.Valid() {
			return nil, store.ErrInvalidInput.WithCause(fmt.Errorf("session %s has unknown close reason %q", rs.ID, closeReason.String))
		}
	}

	return &rs, nil
}

// querySessions runs a query returning readingSessionColumns rows.
func (s *Store) querySessions(ctx context.Context, query string, args ...any) ([]*domain.ReadingSession, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.ReadingSession
	for rows.Next() {
		rs, err := scanReadingSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, rs)
	}
	return sessions, rows.Err()
}

// CreateSession inserts a new open reading session.
// Returns store.ErrOpenSessionExists if the pairing already has an open
// session and store.ErrAlreadyExists if the ID is taken.
func (s *Store) CreateSession(ctx context.Context, session *domain.ReadingSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reading_sessions (
			id, user_id, book_id, created_at, elapsed_seconds,
			is_open, closed_at, close_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		session.BookID,
		formatTime(session.CreatedAt),
		session.ElapsedSeconds(),
		boolToInt(session.IsOpen),
		nullTimeString(session.ClosedAt),
		nullString(string(session.CloseReason)),
	)
	if err != nil {
		switch {
		case isUniqueViolation(err, "reading_sessions.id"):
			return store.ErrAlreadyExists
		case isUniqueViolation(err, "reading_sessions.user_id"):
			return store.ErrOpenSessionExists
		}
		return fmt.Errorf("insert reading session: %w", err)
	}
	return nil
}

// GetSession returns a reading session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*domain.ReadingSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+readingSessionColumns+` FROM reading_sessions WHERE id = ?`, id)
	rs, err := scanReadingSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// FindOpenSession returns the open session for a user+book, or nil if there is none.
func (s *Store) FindOpenSession(ctx context.Context, userID, bookID string) (*domain.ReadingSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+readingSessionColumns+` FROM reading_sessions
		WHERE user_id = ? AND book_id = ? AND is_open = 1`, userID, bookID)
	rs, err := scanReadingSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open session: %w", err)
	}
	return rs, nil
}

// ListOpenSessions returns open sessions created before createdBefore,
// oldest first. A zero createdBefore returns all open sessions.
func (s *Store) ListOpenSessions(ctx context.Context, createdBefore time.Time) ([]*domain.ReadingSession, error) {
	query := `SELECT ` + readingSessionColumns + ` FROM reading_sessions WHERE is_open = 1`
	var args []any
	if !createdBefore.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, formatTime(createdBefore))
	}
	query += ` ORDER BY created_at, id`

	sessions, err := s.querySessions(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}
	return sessions, nil
}

// CloseSession closes an open session and adds its elapsed time to the
// user+book aggregate in one transaction. The UPDATE only matches while the
// row is still open, so of two racing closers exactly one wins.
func (s *Store) CloseSession(ctx context.Context, id string, req domain.CloseRequest) (*domain.ReadingSession, *domain.ReadingAggregate, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin close: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	elapsedSeconds := int64(req.Elapsed / time.Second)
	closedAt := formatTime(req.ClosedAt)

	result, err := tx.ExecContext(ctx, `
		UPDATE reading_sessions SET
			is_open = 0,
			elapsed_seconds = ?,
			closed_at = ?,
			close_reason = ?
		WHERE id = ? AND is_open = 1`,
		elapsedSeconds, closedAt, string(req.Reason), id)
	if err != nil {
		return nil, nil, fmt.Errorf("close session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, nil, err
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+readingSessionColumns+` FROM reading_sessions WHERE id = ?`, id)
	session, err := scanReadingSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, store.ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if n == 0 {
		return nil, nil, store.ErrSessionClosed
	}

	agg, err := addToAggregate(ctx, tx, session.UserID, session.BookID, elapsedSeconds, closedAt)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit close: %w", err)
	}
	return session, agg, nil
}

// ListPairSessions returns every retained session of a user+book, oldest first.
func (s *Store) ListPairSessions(ctx context.Context, userID, bookID string) ([]*domain.ReadingSession, error) {
	sessions, err := s.querySessions(ctx,
		`SELECT `+readingSessionColumns+` FROM reading_sessions
		WHERE user_id = ? AND book_id = ?
		ORDER BY created_at, id`, userID, bookID)
	if err != nil {
		return nil, fmt.Errorf("list sessions for user %s book %s: %w", userID, bookID, err)
	}
	return sessions, nil
}

// ListUserSessionsBetween returns a user's sessions created in [start, end), oldest first.
func (s *Store) ListUserSessionsBetween(ctx context.Context, userID string, start, end time.Time) ([]*domain.ReadingSession, error) {
	sessions, err := s.querySessions(ctx,
		`SELECT `+readingSessionColumns+` FROM reading_sessions
		WHERE user_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at, id`, userID, formatTime(start), formatTime(end))
	if err != nil {
		return nil, fmt.Errorf("list sessions for user %s: %w", userID, err)
	}
	return sessions, nil
}

// DeleteSessions removes the given sessions and returns how many existed.
// Aggregates are not touched.
func (s *Store) DeleteSessions(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM reading_sessions WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
