package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/readtime-server/internal/domain"
	domainerrors "github.com/listenupapp/readtime-server/internal/errors"
)

func (s *Server) registerCalendarRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getCalendar",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/{userID}/calendar",
		Summary:     "Get reading calendar",
		Description: "Returns the reading summary of one day (date=YYYY-MM-DD) or of every day in a month (month=YYYY-MM)",
		Tags:        []string{"Calendar"},
	}, s.handleGetCalendar)
}

// GetCalendarInput contains parameters for the calendar view.
// Exactly one of Date and Month must be set.
type GetCalendarInput struct {
	UserID string `path:"userID" doc:"User ID"`
	Date   string `query:"date" doc:"Day as YYYY-MM-DD"`
	Month  string `query:"month" doc:"Month as YYYY-MM"`
}

// CalendarResponse holds either a single day or a month of days.
type CalendarResponse struct {
	Day  *domain.DailyView  `json:"day,omitempty" doc:"Summary of the requested day"`
	Days []domain.DailyView `json:"days,omitempty" doc:"One summary per day of the requested month"`
}

// CalendarOutput wraps the calendar response for Huma.
type CalendarOutput struct {
	Body CalendarResponse
}

func (s *Server) handleGetCalendar(ctx context.Context, input *GetCalendarInput) (*CalendarOutput, error) {
	switch {
	case input.Date != "" && input.Month != "":
		return nil, domainerrors.Validation("date and month are mutually exclusive")
	case input.Date != "":
		day, err := s.services.Calendar.DailyView(ctx, input.UserID, input.Date)
		if err != nil {
			return nil, err
		}
		return &CalendarOutput{Body: CalendarResponse{Day: day}}, nil
	case input.Month != "":
		days, err := s.services.Calendar.MonthlyView(ctx, input.UserID, input.Month)
		if err != nil {
			return nil, err
		}
		return &CalendarOutput{Body: CalendarResponse{Days: days}}, nil
	default:
		return nil, domainerrors.Validation("one of date or month is required")
	}
}
