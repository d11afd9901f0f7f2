package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/readtime-server/internal/domain"
	domainerrors "github.com/listenupapp/readtime-server/internal/errors"
)

func TestDailyView_Totals(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		env.readFor(t, "u1", "b1", 30*time.Minute)
		second := env.readFor(t, "u1", "b2", 10*time.Minute)
		env.readFor(t, "u1", "b1", 5*time.Minute)
		env.readFor(t, "u2", "b3", time.Hour)

		view, err := env.calendar.DailyView(context.Background(), "u1", "2024-03-05")
		require.NoError(t, err)

		assert.Equal(t, "2024-03-05", view.Date)
		assert.Equal(t, "00:45:00", view.TotalReadTime)
		assert.Equal(t, int64(45*60), view.TotalSeconds)
		assert.Equal(t, 3, view.SessionCount)
		assert.False(t, view.InProgress)
		require.NotNil(t, view.StartTime)
		assert.True(t, view.StartTime.Equal(t0))
		require.NotNil(t, view.EndTime)
		assert.True(t, view.EndTime.Equal(t0.Add(40*time.Minute)))
		assert.True(t, second.CreatedAt.Before(*view.EndTime))

		// First-appearance order, each book once.
		assert.Equal(t, []domain.BookRef{
			{ID: "b1", Title: "A Wizard of Earthsea", CoverURL: "https://covers.example/b1"},
			{ID: "b2", Title: "The Tombs of Atuan", CoverURL: "https://covers.example/b2"},
		}, view.BooksTouched)
	})
}

func TestDailyView_EmptyDay(t *testing.T) {
	env := newTestEnv(t)
	env.readFor(t, "u1", "b1", time.Minute)

	view, err := env.calendar.DailyView(context.Background(), "u1", "2024-03-04")
	require.NoError(t, err)

	assert.Equal(t, "00:00:00", view.TotalReadTime)
	assert.Nil(t, view.StartTime)
	assert.Nil(t, view.EndTime)
	assert.False(t, view.InProgress)
	assert.NotNil(t, view.BooksTouched)
	assert.Empty(t, view.BooksTouched)
}

func TestDailyView_InProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.readFor(t, "u1", "b1", 20*time.Minute)
	_, err := env.sessions.StartSession(ctx, "u1", "b2")
	require.NoError(t, err)
	env.clock.Advance(15 * time.Minute)

	view, err := env.calendar.DailyView(ctx, "u1", "2024-03-05")
	require.NoError(t, err)

	assert.True(t, view.InProgress)
	assert.Nil(t, view.EndTime)
	assert.Equal(t, 2, view.SessionCount)
	// The open session contributes nothing until it closes.
	assert.Equal(t, "00:20:00", view.TotalReadTime)
	assert.Len(t, view.BooksTouched, 2)
}

// Every day of the month is present; only March 5 has data.
func TestMonthlyView_SingleActiveDay(t *testing.T) {
	env := newTestEnv(t)
	env.readFor(t, "u1", "b1", 30*time.Minute)
	env.readFor(t, "u1", "b2", 10*time.Minute)

	days, err := env.calendar.MonthlyView(context.Background(), "u1", "2024-03")
	require.NoError(t, err)
	require.Len(t, days, 31)

	for i, day := range days {
		assert.Equal(t, time.Date(2024, 3, i+1, 0, 0, 0, 0, time.UTC).Format(domain.DateLayout), day.Date)
		if i == 4 {
			assert.Equal(t, "00:40:00", day.TotalReadTime)
			assert.Equal(t, 2, day.SessionCount)
			assert.NotNil(t, day.StartTime)
			assert.NotNil(t, day.EndTime)
			assert.Len(t, day.BooksTouched, 2)
			continue
		}
		assert.Equal(t, "00:00:00", day.TotalReadTime, day.Date)
		assert.Nil(t, day.StartTime, day.Date)
		assert.Nil(t, day.EndTime, day.Date)
		assert.Equal(t, []domain.BookRef{}, day.BooksTouched, day.Date)
	}
}

func TestMonthlyView_DaysInMonth(t *testing.T) {
	env := newTestEnv(t)
	tests := map[string]int{"2024-02": 29, "2023-02": 28, "2024-04": 30, "2024-12": 31}
	for month, want := range tests {
		days, err := env.calendar.MonthlyView(context.Background(), "u1", month)
		require.NoError(t, err)
		assert.Len(t, days, want, month)
	}
}

// The days of a month add up to the elapsed time of the month's sessions.
func TestMonthlyView_SumMatchesSessions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		var want time.Duration
		want += env.readFor(t, "u1", "b1", time.Hour).Elapsed
		want += env.readFor(t, "u1", "b2", 90*time.Second).Elapsed

		env.clock.Advance(5 * 24 * time.Hour)
		want += env.readFor(t, "u1", "b1", 45*time.Minute).Elapsed

		// March 31 23:30; runs past midnight but is bucketed by its start.
		env.advanceTo(time.Date(2024, 3, 31, 23, 30, 0, 0, time.UTC))
		want += env.readFor(t, "u1", "b3", time.Hour).Elapsed

		// April does not count toward March.
		env.clock.Advance(24 * time.Hour)
		env.readFor(t, "u1", "b1", 2*time.Hour)

		days, err := env.calendar.MonthlyView(context.Background(), "u1", "2024-03")
		require.NoError(t, err)

		var sum int64
		for _, day := range days {
			sum += day.TotalSeconds
		}
		assert.Equal(t, int64(want/time.Second), sum)
		assert.Equal(t, "01:00:00", days[30].TotalReadTime)
	})
}

func TestCalendar_Timezone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	loc := time.FixedZone("UTC-5", -5*60*60)
	eastern := NewCalendarService(env.store, env.catalog, loc, slog.New(slog.DiscardHandler))

	// 2024-03-06 03:00 UTC is still March 5 at UTC-5.
	env.advanceTo(time.Date(2024, 3, 6, 3, 0, 0, 0, time.UTC))
	env.readFor(t, "u1", "b1", 10*time.Minute)

	view, err := eastern.DailyView(ctx, "u1", "2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, "00:10:00", view.TotalReadTime)

	view, err = env.calendar.DailyView(ctx, "u1", "2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, "00:00:00", view.TotalReadTime)

	view, err = env.calendar.DailyView(ctx, "u1", "2024-03-06")
	require.NoError(t, err)
	assert.Equal(t, "00:10:00", view.TotalReadTime)
}

func TestCalendar_UnresolvableBookListedByID(t *testing.T) {
	env := newTestEnv(t)
	env.readFor(t, "u1", "b3", time.Minute)
	env.catalog.broken["b3"] = true

	view, err := env.calendar.DailyView(context.Background(), "u1", "2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, []domain.BookRef{{ID: "b3"}}, view.BooksTouched)
	assert.Equal(t, "00:01:00", view.TotalReadTime)
}

func TestCalendar_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, date := range []string{"", "2024-3-5", "yesterday", "2024-02-30"} {
		_, err := env.calendar.DailyView(ctx, "u1", date)
		assert.ErrorIs(t, err, domainerrors.ErrValidation, "date %q", date)
	}
	for _, month := range []string{"", "2024-13", "2024-03-01", "March"} {
		_, err := env.calendar.MonthlyView(ctx, "u1", month)
		assert.ErrorIs(t, err, domainerrors.ErrValidation, "month %q", month)
	}

	_, err := env.calendar.DailyView(ctx, "", "2024-03-05")
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = env.calendar.DailyView(ctx, "nobody", "2024-03-05")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	_, err = env.calendar.MonthlyView(ctx, "nobody", "2024-03")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}
