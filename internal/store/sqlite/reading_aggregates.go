package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/listenupapp/readtime-server/internal/domain"
)

const readingAggregateColumns = `user_id, book_id, total_elapsed_seconds, sessions_closed, updated_at`

func scanReadingAggregate(scanner interface{ Scan(dest ...any) error }) (*domain.ReadingAggregate, error) {
	var (
		agg       domain.ReadingAggregate
		total     int64
		updatedAt string
	)
	if err := scanner.Scan(&agg.UserID, &agg.BookID, &total, &agg.SessionsClosed, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	agg.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	agg.TotalElapsed = time.Duration(total) * time.Second
	return &agg, nil
}

// GetAggregate returns the reading total for a user+book.
// Returns nil, nil if no session of the pairing has been closed yet.
func (s *Store) GetAggregate(ctx context.Context, userID, bookID string) (*domain.ReadingAggregate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+readingAggregateColumns+` FROM reading_aggregates
		WHERE user_id = ? AND book_id = ?`, userID, bookID)
	agg, err := scanReadingAggregate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return agg, nil
}

// addToAggregate atomically increments the pairing's total inside tx,
// creating the row on first close.
func addToAggregate(ctx context.Context, tx *sql.Tx, userID, bookID string, elapsedSeconds int64, updatedAt string) (*domain.ReadingAggregate, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO reading_aggregates (user_id, book_id, total_elapsed_seconds, sessions_closed, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(user_id, book_id) DO UPDATE SET
			total_elapsed_seconds = total_elapsed_seconds + excluded.total_elapsed_seconds,
			sessions_closed = sessions_closed + 1,
			updated_at = excluded.updated_at`,
		userID, bookID, elapsedSeconds, updatedAt)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+readingAggregateColumns+` FROM reading_aggregates
		WHERE user_id = ? AND book_id = ?`, userID, bookID)
	return scanReadingAggregate(row)
}
