package providers

import (
	"fmt"
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/listenupapp/readtime-server/internal/config"
	"github.com/listenupapp/readtime-server/internal/logger"
	"github.com/listenupapp/readtime-server/internal/store"
	"github.com/listenupapp/readtime-server/internal/store/sqlite"
)

// StoreHandle wraps the session store with shutdown capability.
type StoreHandle struct {
	store.SessionStore
	Backend string
	Path    string
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the session store for the configured backend.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	handle, err := OpenStore(cfg, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "backend", handle.Backend, "path", handle.Path)
	return handle, nil
}

// OpenStore opens the backend named by cfg.Storage.Backend.
func OpenStore(cfg *config.Config, log *slog.Logger) (*StoreHandle, error) {
	path := cfg.DatabasePath()
	component := log.With("component", "store")

	var (
		st  store.SessionStore
		err error
	)
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		st, err = sqlite.Open(path, component)
	case config.BackendBadger:
		st, err = store.New(path, component)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Storage.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store at %s: %w", cfg.Storage.Backend, path, err)
	}

	return &StoreHandle{SessionStore: st, Backend: cfg.Storage.Backend, Path: path}, nil
}
