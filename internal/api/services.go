package api

import "github.com/listenupapp/readtime-server/internal/service"

// Services groups the business logic services used by the API server.
type Services struct {
	Sessions *service.ReadingSessionService
	Calendar *service.CalendarService
	Sweeper  *service.Sweeper // Manual sweeps and health
}
