package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/listenupapp/readtime-server/internal/catalog"
	"github.com/listenupapp/readtime-server/internal/domain"
	domainerrors "github.com/listenupapp/readtime-server/internal/errors"
	"github.com/listenupapp/readtime-server/internal/store"
	"github.com/listenupapp/readtime-server/internal/validation"
)

// CalendarService builds per-day reading summaries. It only reads.
type CalendarService struct {
	store     store.SessionStore
	catalog   catalog.Catalog
	loc       *time.Location
	validator *validation.Validator
	logger    *slog.Logger
}

// NewCalendarService creates a calendar service whose days start at
// midnight in loc. A nil loc means UTC.
func NewCalendarService(st store.SessionStore, cat catalog.Catalog, loc *time.Location, logger *slog.Logger) *CalendarService {
	if loc == nil {
		loc = time.UTC
	}
	return &CalendarService{
		store:     st,
		catalog:   cat,
		loc:       loc,
		validator: validation.New(),
		logger:    logger,
	}
}

// DailyView summarizes the user's sessions created on date (YYYY-MM-DD).
func (c *CalendarService) DailyView(ctx context.Context, userID, date string) (*domain.DailyView, error) {
	day, err := domain.ParseDate(date, c.loc)
	if err != nil {
		return nil, domainerrors.Validation(err.Error())
	}
	if err := c.resolveUser(ctx, userID); err != nil {
		return nil, err
	}

	start, end := domain.DayBounds(day, c.loc)
	sessions, err := c.store.ListUserSessionsBetween(ctx, userID, start, end)
	if err != nil {
		return nil, storeError(err, "list sessions for day")
	}

	books := newBookCache(c.catalog, c.logger)
	view := c.buildDay(ctx, start, sessions, books)
	return &view, nil
}

// MonthlyView returns one DailyView per day of yearMonth (YYYY-MM).
// The month is read once and bucketed by day.
func (c *CalendarService) MonthlyView(ctx context.Context, userID, yearMonth string) ([]domain.DailyView, error) {
	month, err := domain.ParseYearMonth(yearMonth, c.loc)
	if err != nil {
		return nil, domainerrors.Validation(err.Error())
	}
	if err := c.resolveUser(ctx, userID); err != nil {
		return nil, err
	}

	start, end := domain.MonthBounds(month, c.loc)
	sessions, err := c.store.ListUserSessionsBetween(ctx, userID, start, end)
	if err != nil {
		return nil, storeError(err, "list sessions for month")
	}

	// Sessions are ascending, so every bucket stays ascending too.
	buckets := make(map[string][]*domain.ReadingSession)
	for _, s := range sessions {
		key := s.CreatedAt.In(c.loc).Format(domain.DateLayout)
		buckets[key] = append(buckets[key], s)
	}

	books := newBookCache(c.catalog, c.logger)
	var days []domain.DailyView
	for day := start; day.Before(end); {
		days = append(days, c.buildDay(ctx, day, buckets[day.Format(domain.DateLayout)], books))
		y, m, d := day.Date()
		day = time.Date(y, m, d+1, 0, 0, 0, 0, c.loc)
	}
	return days, nil
}

func (c *CalendarService) resolveUser(ctx context.Context, userID string) error {
	if err := c.validator.ValidateID("user_id", userID); err != nil {
		return err
	}
	_, err := c.catalog.ResolveUser(ctx, userID)
	return err
}

// buildDay folds one day's sessions (ascending by CreatedAt) into a view.
// Only closed sessions count toward the total; an open latest session
// marks the day in progress and leaves EndTime unset.
func (c *CalendarService) buildDay(ctx context.Context, day time.Time, sessions []*domain.ReadingSession, books *bookCache) domain.DailyView {
	view := domain.EmptyDailyView(day)
	if len(sessions) == 0 {
		return view
	}

	var (
		total      time.Duration
		lastClosed *time.Time
		seen       = make(map[string]bool)
	)
	for _, s := range sessions {
		if !s.IsOpen {
			total += s.Elapsed
			createdAt := s.CreatedAt
			lastClosed = &createdAt
		}
		if !seen[s.BookID] {
			seen[s.BookID] = true
			view.BooksTouched = append(view.BooksTouched, books.ref(ctx, s.BookID))
		}
	}

	first := sessions[0].CreatedAt
	view.StartTime = &first
	view.SessionCount = len(sessions)
	view.TotalSeconds = int64(total / time.Second)
	view.TotalReadTime = domain.FormatReadTime(total)

	if sessions[len(sessions)-1].IsOpen {
		view.InProgress = true
	} else {
		view.EndTime = lastClosed
	}
	return view
}

// bookCache memoizes book lookups for the duration of one calendar request.
type bookCache struct {
	catalog catalog.BookResolver
	logger  *slog.Logger
	refs    map[string]domain.BookRef
}

func newBookCache(cat catalog.BookResolver, logger *slog.Logger) *bookCache {
	return &bookCache{catalog: cat, logger: logger, refs: make(map[string]domain.BookRef)}
}

// ref resolves a book for display. A book that cannot be resolved is
// listed by id only.
func (b *bookCache) ref(ctx context.Context, bookID string) domain.BookRef {
	if r, ok := b.refs[bookID]; ok {
		return r
	}

	r := domain.BookRef{ID: bookID}
	book, err := b.catalog.ResolveBook(ctx, bookID)
	if err != nil {
		b.logger.Warn("calendar could not resolve book", "book_id", bookID, "error", err)
	} else {
		r.Title = book.Title
		r.CoverURL = book.CoverURL
	}

	b.refs[bookID] = r
	return r
}
