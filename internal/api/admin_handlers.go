package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/listenupapp/readtime-server/internal/errors"
	"github.com/listenupapp/readtime-server/internal/service"
)

func (s *Server) registerAdminRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "runSweep",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/sweep",
		Summary:     "Run sweep",
		Description: "Closes every abandoned open session now instead of waiting for the next scheduled sweep",
		Tags:        []string{"Admin"},
	}, s.handleRunSweep)
}

// SweepResponse summarizes a sweep run.
type SweepResponse struct {
	RunID      string    `json:"run_id" doc:"Sweep run ID"`
	StartedAt  time.Time `json:"started_at" doc:"When the sweep started"`
	DurationMs int64     `json:"duration_ms" doc:"Run time in milliseconds"`
	Scanned    int       `json:"scanned" doc:"Open sessions considered"`
	Closed     int       `json:"closed" doc:"Sessions closed by this sweep"`
	Skipped    int       `json:"skipped" doc:"Sessions closed concurrently by another path"`
	Failed     int       `json:"failed" doc:"Sessions left open after an error"`
}

// SweepOutput wraps the sweep response for Huma.
type SweepOutput struct {
	Body SweepResponse
}

func (s *Server) handleRunSweep(ctx context.Context, _ *struct{}) (*SweepOutput, error) {
	result, err := s.services.Sweeper.Sweep(ctx)
	if errors.Is(err, service.ErrSweepInProgress) {
		return nil, domainerrors.Conflict("a sweep is already running")
	}
	if err != nil {
		return nil, err
	}
	return &SweepOutput{Body: toSweepResponse(result)}, nil
}

func toSweepResponse(r *service.SweepResult) SweepResponse {
	return SweepResponse{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		DurationMs: r.Duration.Milliseconds(),
		Scanned:    r.Scanned,
		Closed:     r.Closed,
		Skipped:    r.Skipped,
		Failed:     r.Failed,
	}
}
