package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// staleSweepIntervals is how many missed intervals mark the sweeper degraded.
const staleSweepIntervals = 3

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	components := map[string]ComponentHealth{
		"store":   s.checkStore(ctx),
		"sweeper": s.checkSweeper(),
	}

	overall := "healthy"
	for _, c := range components {
		switch c.Status {
		case "unhealthy":
			overall = "unhealthy"
		case "degraded":
			if overall == "healthy" {
				overall = "degraded"
			}
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:     overall,
			Components: components,
		},
	}, nil
}

// checkStore verifies the session store is accessible.
func (s *Server) checkStore(ctx context.Context) ComponentHealth {
	if s.store == nil {
		return ComponentHealth{
			Status:  "degraded",
			Message: "store not configured",
		}
	}

	start := time.Now()
	err := s.store.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  "unhealthy",
			Latency: latency.String(),
			Message: "store unreachable",
		}
	}

	return ComponentHealth{
		Status:  "healthy",
		Latency: latency.String(),
	}
}

// checkSweeper reports when the last sweep ran. A scheduled sweeper that
// has not completed a run for several intervals is degraded.
func (s *Server) checkSweeper() ComponentHealth {
	if s.services == nil || s.services.Sweeper == nil {
		return ComponentHealth{
			Status:  "degraded",
			Message: "sweeper not configured",
		}
	}

	last := s.services.Sweeper.LastRun()
	if last == nil {
		if !s.cfg.SweepEnabled {
			return ComponentHealth{Status: "healthy", Message: "scheduled sweeps disabled"}
		}
		return ComponentHealth{Status: "healthy", Message: "no sweep completed yet"}
	}

	msg := "last sweep at " + last.StartedAt.Format(time.RFC3339)
	age := s.clock.Since(last.StartedAt)
	if s.cfg.SweepEnabled && age > staleSweepIntervals*s.services.Sweeper.Interval() {
		return ComponentHealth{Status: "degraded", Message: msg}
	}
	return ComponentHealth{Status: "healthy", Message: msg}
}
