// Package di provides dependency injection configuration for the readtime server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/readtime-server/internal/config"
	"github.com/listenupapp/readtime-server/internal/di/providers"
	"github.com/listenupapp/readtime-server/internal/logger"
	"github.com/listenupapp/readtime-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideClock)

	// Collaborators
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideCatalog)

	// Business services
	do.Provide(injector, providers.ProvideRetentionEnforcer)
	do.Provide(injector, providers.ProvideReadingSessionService)
	do.Provide(injector, providers.ProvideCalendarService)
	do.Provide(injector, providers.ProvideSweeper)

	// Workers
	do.Provide(injector, providers.ProvideSweepJob)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)

	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.CatalogHandle](injector); err != nil {
		return err
	}

	// Business services
	_ = do.MustInvoke[*service.ReadingSessionService](injector)
	_ = do.MustInvoke[*service.CalendarService](injector)
	_ = do.MustInvoke[*service.Sweeper](injector)

	// Workers
	_ = do.MustInvoke[*providers.SweepJob](injector)

	// Server
	if _, err := do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
		return err
	}

	return nil
}
