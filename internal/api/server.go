// Package api provides the HTTP API server and handlers for the readtime service.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/listenupapp/readtime-server/internal/ratelimit"
	"github.com/listenupapp/readtime-server/internal/store"
)

// Version is reported in the OpenAPI document.
const Version = "1.0.0"

// Config configures the HTTP surface.
type Config struct {
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	// TrustProxyHeaders mounts middleware.RealIP so RemoteAddr comes from
	// X-Forwarded-For/X-Real-IP. Leave off unless a proxy sets them.
	TrustProxyHeaders bool
	// SweepEnabled makes health report a stale sweeper as degraded.
	SweepEnabled bool
	// Clock defaults to the real clock.
	Clock clockwork.Clock
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store    store.SessionStore
	services *Services
	cfg      Config
	clock    clockwork.Clock
	router   *chi.Mux
	api      huma.API
	limiter  *ratelimit.KeyedRateLimiter
	logger   *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(st store.SessionStore, services *Services, cfg Config, logger *slog.Logger) *Server {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	s := &Server{
		store:    st,
		services: services,
		cfg:      cfg,
		clock:    cfg.Clock,
		router:   chi.NewRouter(),
		logger:   logger,
	}
	if cfg.RateLimitRPS > 0 {
		s.limiter = ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	s.setupMiddleware()

	humaConfig := huma.DefaultConfig("Readtime API", Version)
	// The envelope runs first so error bodies still carry their *APIError type.
	humaConfig.Transformers = append([]huma.Transformer{EnvelopeTransformer}, humaConfig.Transformers...)
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases the server's background resources.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	if s.cfg.TrustProxyHeaders {
		s.router.Use(middleware.RealIP)
	}
	s.router.Use(s.observeRequests)
	s.router.Use(middleware.Recoverer)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	if s.limiter != nil {
		s.router.Use(RateLimitMiddleware(s.limiter, s.logger))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.Handler())

	s.registerHealthRoutes()
	s.registerSessionRoutes()
	s.registerCalendarRoutes()
	s.registerAdminRoutes()
}
