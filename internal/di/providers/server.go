package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/samber/do/v2"

	"github.com/listenupapp/readtime-server/internal/api"
	"github.com/listenupapp/readtime-server/internal/config"
	"github.com/listenupapp/readtime-server/internal/logger"
	"github.com/listenupapp/readtime-server/internal/service"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	handler *api.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	defer h.handler.Close()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	clock := do.MustInvoke[clockwork.Clock](i)
	log := do.MustInvoke[*logger.Logger](i)

	services := &api.Services{
		Sessions: do.MustInvoke[*service.ReadingSessionService](i),
		Calendar: do.MustInvoke[*service.CalendarService](i),
		Sweeper:  do.MustInvoke[*service.Sweeper](i),
	}

	handler := api.NewServer(storeHandle, services, api.Config{
		CORSOrigins:       cfg.Server.CORSOrigins,
		RateLimitRPS:      cfg.Server.RateLimitRPS,
		RateLimitBurst:    cfg.Server.RateLimitBurst,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		SweepEnabled:      cfg.Sweeper.Enabled,
		Clock:             clock,
	}, log.Component("http"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv, handler: handler}, nil
}
