package providers

import (
	"github.com/jonboulle/clockwork"
	"github.com/samber/do/v2"

	"github.com/listenupapp/readtime-server/internal/config"
	"github.com/listenupapp/readtime-server/internal/logger"
	"github.com/listenupapp/readtime-server/internal/service"
)

// ProvideRetentionEnforcer provides the per user+book session retention policy.
func ProvideRetentionEnforcer(i do.Injector) (*service.RetentionEnforcer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewRetentionEnforcer(storeHandle, cfg.Sessions.RetentionMax, log.Component("retention")), nil
}

// ProvideReadingSessionService provides the reading session service.
func ProvideReadingSessionService(i do.Injector) (*service.ReadingSessionService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	catalogHandle := do.MustInvoke[*CatalogHandle](i)
	retention := do.MustInvoke[*service.RetentionEnforcer](i)
	clock := do.MustInvoke[clockwork.Clock](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewReadingSessionService(
		storeHandle,
		catalogHandle,
		retention,
		clock,
		cfg.Sessions.MaxElapsed,
		log.Component("sessions"),
	), nil
}

// ProvideCalendarService provides the calendar service.
func ProvideCalendarService(i do.Injector) (*service.CalendarService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	catalogHandle := do.MustInvoke[*CatalogHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewCalendarService(storeHandle, catalogHandle, cfg.Calendar.Location, log.Component("calendar")), nil
}

// ProvideSweeper provides the abandoned-session sweeper. It is built even
// when scheduled sweeps are disabled so manual sweeps keep working.
func ProvideSweeper(i do.Injector) (*service.Sweeper, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sessions := do.MustInvoke[*service.ReadingSessionService](i)
	clock := do.MustInvoke[clockwork.Clock](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewSweeper(storeHandle, sessions, clock, service.SweeperConfig{
		Interval: cfg.Sweeper.Interval,
		MinAge:   cfg.Sweeper.MinAge,
	}, log.Component("sweeper")), nil
}
