package api

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/readtime-server/internal/domain"
)

func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "startSession",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions",
		Summary:       "Start reading session",
		Description:   "Opens a reading session for a user and book. An open session for the same pair is closed first.",
		Tags:          []string{"Sessions"},
		DefaultStatus: http.StatusCreated,
	}, s.handleStartSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "stopSession",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{sessionID}/stop",
		Summary:     "Stop reading session",
		Description: "Closes an open session with the elapsed time reported by the client",
		Tags:        []string{"Sessions"},
	}, s.handleStopSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "getSession",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{sessionID}",
		Summary:     "Get reading session",
		Description: "Returns a reading session by ID",
		Tags:        []string{"Sessions"},
	}, s.handleGetSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "listBookSessions",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/{userID}/books/{bookID}/sessions",
		Summary:     "List book sessions",
		Description: "Returns the retained sessions of a user on a book, newest first, with the lifetime total",
		Tags:        []string{"Sessions"},
	}, s.handleListBookSessions)
}

// === DTOs ===

// StartSessionRequest is the request body for starting a session.
type StartSessionRequest struct {
	UserID string `json:"user_id" doc:"User ID"`
	BookID string `json:"book_id" doc:"Book ID"`
}

// StartSessionInput wraps the start session request for Huma.
type StartSessionInput struct {
	Body StartSessionRequest
}

// StartSessionResponse contains the new session.
type StartSessionResponse struct {
	SessionID           string    `json:"session_id" doc:"New session ID"`
	CreatedAt           time.Time `json:"created_at" doc:"Session start time"`
	SupersededSessionID string    `json:"superseded_session_id,omitempty" doc:"Open session this start closed, if any"`
}

// StartSessionOutput wraps the start session response for Huma.
type StartSessionOutput struct {
	Body StartSessionResponse
}

// StopSessionRequest is the request body for stopping a session.
type StopSessionRequest struct {
	ElapsedSeconds float64 `json:"elapsed_seconds" doc:"Client-measured reading time in seconds; fractions are truncated"`
}

// StopSessionInput wraps the stop session request for Huma.
type StopSessionInput struct {
	SessionID string `path:"sessionID" doc:"Session ID"`
	Body      StopSessionRequest
}

// SessionResponse contains session data in API responses.
type SessionResponse struct {
	ID             string     `json:"id" doc:"Session ID"`
	UserID         string     `json:"user_id" doc:"User ID"`
	BookID         string     `json:"book_id" doc:"Book ID"`
	CreatedAt      time.Time  `json:"created_at" doc:"Session start time"`
	ElapsedSeconds int64      `json:"elapsed_seconds" doc:"Reading time in whole seconds"`
	IsOpen         bool       `json:"is_open" doc:"Whether the session is still in progress"`
	ClosedAt       *time.Time `json:"closed_at,omitempty" doc:"When the session was closed"`
	CloseReason    string     `json:"close_reason,omitempty" enum:"stopped,superseded,swept" doc:"What closed the session"`
}

// StopSessionResponse acknowledges a stop.
type StopSessionResponse struct {
	OK      bool            `json:"ok" doc:"Always true on success"`
	Session SessionResponse `json:"session" doc:"The closed session"`
}

// StopSessionOutput wraps the stop session response for Huma.
type StopSessionOutput struct {
	Body StopSessionResponse
}

// GetSessionInput contains parameters for getting a session.
type GetSessionInput struct {
	SessionID string `path:"sessionID" doc:"Session ID"`
}

// SessionOutput wraps the session response for Huma.
type SessionOutput struct {
	Body SessionResponse
}

// ListBookSessionsInput contains parameters for listing a pair's sessions.
type ListBookSessionsInput struct {
	UserID string `path:"userID" doc:"User ID"`
	BookID string `path:"bookID" doc:"Book ID"`
}

// AggregateResponse is the lifetime reading total of a user on a book.
type AggregateResponse struct {
	UserID         string     `json:"user_id" doc:"User ID"`
	BookID         string     `json:"book_id" doc:"Book ID"`
	TotalSeconds   int64      `json:"total_elapsed_seconds" doc:"Total reading time in seconds"`
	TotalReadTime  string     `json:"total_read_time" doc:"Total reading time as HH:MM:SS"`
	SessionsClosed int64      `json:"sessions_closed" doc:"Number of sessions ever closed"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty" doc:"Last time a session was added"`
}

// ListBookSessionsResponse contains a pair's session history.
type ListBookSessionsResponse struct {
	Sessions  []SessionResponse `json:"sessions" doc:"Retained sessions, newest first"`
	Aggregate AggregateResponse `json:"aggregate" doc:"Lifetime total, unaffected by retention"`
}

// ListBookSessionsOutput wraps the session history for Huma.
type ListBookSessionsOutput struct {
	Body ListBookSessionsResponse
}

// === Handlers ===

func (s *Server) handleStartSession(ctx context.Context, input *StartSessionInput) (*StartSessionOutput, error) {
	result, err := s.services.Sessions.StartSession(ctx, input.Body.UserID, input.Body.BookID)
	if err != nil {
		return nil, err
	}

	return &StartSessionOutput{
		Body: StartSessionResponse{
			SessionID:           result.Session.ID,
			CreatedAt:           result.Session.CreatedAt,
			SupersededSessionID: result.SupersededSessionID,
		},
	}, nil
}

func (s *Server) handleStopSession(ctx context.Context, input *StopSessionInput) (*StopSessionOutput, error) {
	closed, err := s.services.Sessions.StopSession(ctx, input.SessionID, secondsToDuration(input.Body.ElapsedSeconds))
	if err != nil {
		return nil, err
	}

	return &StopSessionOutput{
		Body: StopSessionResponse{OK: true, Session: toSessionResponse(closed)},
	}, nil
}

func (s *Server) handleGetSession(ctx context.Context, input *GetSessionInput) (*SessionOutput, error) {
	session, err := s.services.Sessions.GetSession(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}
	return &SessionOutput{Body: toSessionResponse(session)}, nil
}

func (s *Server) handleListBookSessions(ctx context.Context, input *ListBookSessionsInput) (*ListBookSessionsOutput, error) {
	history, err := s.services.Sessions.ListSessions(ctx, input.UserID, input.BookID)
	if err != nil {
		return nil, err
	}

	resp := make([]SessionResponse, len(history.Sessions))
	for i, session := range history.Sessions {
		resp[i] = toSessionResponse(session)
	}

	return &ListBookSessionsOutput{
		Body: ListBookSessionsResponse{
			Sessions:  resp,
			Aggregate: toAggregateResponse(history.Aggregate),
		},
	}, nil
}

// === Helpers ===

func toSessionResponse(session *domain.ReadingSession) SessionResponse {
	return SessionResponse{
		ID:             session.ID,
		UserID:         session.UserID,
		BookID:         session.BookID,
		CreatedAt:      session.CreatedAt,
		ElapsedSeconds: session.ElapsedSeconds(),
		IsOpen:         session.IsOpen,
		ClosedAt:       session.ClosedAt,
		CloseReason:    string(session.CloseReason),
	}
}

func toAggregateResponse(agg *domain.ReadingAggregate) AggregateResponse {
	resp := AggregateResponse{
		UserID:         agg.UserID,
		BookID:         agg.BookID,
		TotalSeconds:   agg.TotalSeconds(),
		TotalReadTime:  domain.FormatReadTime(agg.TotalElapsed),
		SessionsClosed: agg.SessionsClosed,
	}
	if !agg.UpdatedAt.IsZero() {
		updated := agg.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}

// secondsToDuration converts reported seconds, saturating instead of
// overflowing so out-of-range values still fail the elapsed bounds check.
func secondsToDuration(seconds float64) time.Duration {
	limit := float64(math.MaxInt64) / float64(time.Second)
	switch {
	case seconds >= limit:
		return time.Duration(math.MaxInt64)
	case seconds <= -limit:
		return time.Duration(math.MinInt64)
	default:
		return time.Duration(seconds * float64(time.Second))
	}
}
