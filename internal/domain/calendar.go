package domain

import (
	"fmt"
	"time"
)

// Calendar input layouts.
const (
	DateLayout      = "2006-01-02"
	YearMonthLayout = "2006-01"
)

// BookRef is one book read on a given day, enriched for display.
// Title and CoverURL are empty when the book could not be resolved.
type BookRef struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	CoverURL string `json:"cover_url,omitempty"`
}

// DailyView summarizes one calendar day of reading for a user.
type DailyView struct {
	Date          string     `json:"date"`
	TotalReadTime string     `json:"total_read_time"`
	TotalSeconds  int64      `json:"total_seconds"`
	StartTime     *time.Time `json:"start_time"`
	EndTime       *time.Time `json:"end_time"`
	InProgress    bool       `json:"in_progress"`
	SessionCount  int        `json:"session_count"`
	BooksTouched  []BookRef  `json:"books_touched"`
}

// EmptyDailyView returns the view of a day with no sessions.
func EmptyDailyView(day time.Time) DailyView {
	return DailyView{
		Date:          day.Format(DateLayout),
		TotalReadTime: FormatReadTime(0),
		BooksTouched:  []BookRef{},
	}
}

// FormatReadTime renders a duration as HH:MM:SS. Hours are not capped at 24.
func FormatReadTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// DayBounds returns [start of day, start of next day) for day in loc.
// Using the calendar date rather than adding 24h keeps DST days correct.
func DayBounds(day time.Time, loc *time.Location) (start, end time.Time) {
	y, m, d := day.In(loc).Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, loc)
	end = time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	return start, end
}

// MonthBounds returns [first day of month, first day of next month) in loc.
func MonthBounds(month time.Time, loc *time.Location) (start, end time.Time) {
	y, m, _ := month.In(loc).Date()
	start = time.Date(y, m, 1, 0, 0, 0, 0, loc)
	end = time.Date(y, m+1, 1, 0, 0, 0, 0, loc)
	return start, end
}

// ParseDate parses a YYYY-MM-DD date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// ParseYearMonth parses a YYYY-MM month in loc.
func ParseYearMonth(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(YearMonthLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q: expected YYYY-MM", s)
	}
	return t, nil
}
