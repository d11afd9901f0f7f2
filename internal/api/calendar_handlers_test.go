package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Start, stop, start again: the day totals only the closed session.
func TestGetCalendar_Day(t *testing.T) {
	ts := setupTestServer(t)

	first := ts.start(t, "u1", "b1")
	ts.clock.Advance(30 * time.Minute)
	require.Equal(t, http.StatusOK, ts.stop(t, first.SessionID, 1800).Code)
	second := ts.start(t, "u1", "b1")
	assert.NotEqual(t, first.SessionID, second.SessionID)

	resp := ts.api.Get("/api/v1/users/u1/calendar?date=2024-03-05")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	cal := decodeData[CalendarResponse](t, resp)
	require.NotNil(t, cal.Day)
	assert.Nil(t, cal.Days)
	assert.Equal(t, "00:30:00", cal.Day.TotalReadTime)
	assert.True(t, cal.Day.InProgress)
	require.Len(t, cal.Day.BooksTouched, 1)
	assert.Equal(t, "A Wizard of Earthsea", cal.Day.BooksTouched[0].Title)
}

// A month view lists every day, with data only where sessions were closed.
func TestGetCalendar_Month(t *testing.T) {
	ts := setupTestServer(t)

	started := ts.start(t, "u1", "b2")
	ts.clock.Advance(45 * time.Minute)
	require.Equal(t, http.StatusOK, ts.stop(t, started.SessionID, 2700).Code)

	cal := decodeData[CalendarResponse](t, ts.api.Get("/api/v1/users/u1/calendar?month=2024-03"))
	assert.Nil(t, cal.Day)
	require.Len(t, cal.Days, 31)

	for i, day := range cal.Days {
		if i == 4 {
			assert.Equal(t, "2024-03-05", day.Date)
			assert.Equal(t, "00:45:00", day.TotalReadTime)
			continue
		}
		assert.Equal(t, "00:00:00", day.TotalReadTime)
		assert.Nil(t, day.StartTime)
		assert.Nil(t, day.EndTime)
		assert.NotNil(t, day.BooksTouched)
		assert.Empty(t, day.BooksTouched)
	}
}

func TestGetCalendar_Errors(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"neither", "/api/v1/users/u1/calendar", http.StatusBadRequest, "VALIDATION"},
		{"both", "/api/v1/users/u1/calendar?date=2024-03-05&month=2024-03", http.StatusBadRequest, "VALIDATION"},
		{"bad date", "/api/v1/users/u1/calendar?date=05-03-2024", http.StatusBadRequest, "VALIDATION"},
		{"bad month", "/api/v1/users/u1/calendar?month=2024-13", http.StatusBadRequest, "VALIDATION"},
		{"unknown user", "/api/v1/users/nobody/calendar?date=2024-03-05", http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.api.Get(tt.path)
			assert.Equal(t, tt.status, resp.Code, resp.Body.String())
			assert.Equal(t, tt.code, decodeError(t, resp).Code)
		})
	}
}
