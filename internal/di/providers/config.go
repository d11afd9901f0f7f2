// Package providers contains dependency injection providers for the readtime server.
package providers

import (
	"github.com/jonboulle/clockwork"
	"github.com/samber/do/v2"

	"github.com/listenupapp/readtime-server/internal/config"
	"github.com/listenupapp/readtime-server/internal/logger"
)

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := NewLogger(cfg)
	log.Info("Starting readtime server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Storage.DataPath,
		"store_backend", cfg.Storage.Backend,
		"calendar_timezone", cfg.Calendar.Location.String(),
	)

	return log, nil
}

// NewLogger builds the logger described by cfg.
func NewLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})
}

// ProvideClock provides the wall clock used by services and workers.
func ProvideClock(i do.Injector) (clockwork.Clock, error) {
	return clockwork.NewRealClock(), nil
}
