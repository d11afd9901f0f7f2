package providers

import (
	"context"
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/listenupapp/readtime-server/internal/catalog"
	"github.com/listenupapp/readtime-server/internal/config"
	"github.com/listenupapp/readtime-server/internal/logger"
)

// CatalogHandle wraps the user and book catalog with its background resources.
type CatalogHandle struct {
	catalog.Catalog
	Source string
	close  func()
}

// Shutdown implements do.Shutdownable.
func (h *CatalogHandle) Shutdown() error {
	if h.close != nil {
		h.close()
	}
	return nil
}

// ProvideCatalog provides the catalog: a remote client when CATALOG_URL is
// set, otherwise the watched YAML file, otherwise a permissive catalog.
func ProvideCatalog(i do.Injector) (*CatalogHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	handle, err := OpenCatalog(cfg, log.Component("catalog"), true)
	if err != nil {
		return nil, err
	}

	log.Info("Catalog ready", "source", handle.Source)
	return handle, nil
}

// OpenCatalog builds the configured catalog. With watch set, a file
// catalog is reloaded whenever the file changes until Shutdown.
func OpenCatalog(cfg *config.Config, log *slog.Logger, watch bool) (*CatalogHandle, error) {
	switch {
	case cfg.Catalog.URL != "":
		client, err := catalog.NewClient(catalog.ClientConfig{
			BaseURL:   cfg.Catalog.URL,
			Timeout:   cfg.Catalog.Timeout,
			CacheTTL:  cfg.Catalog.CacheTTL,
			CacheSize: cfg.Catalog.CacheSize,
			RPS:       cfg.Catalog.RPS,
		}, log)
		if err != nil {
			return nil, err
		}
		return &CatalogHandle{Catalog: client, Source: cfg.Catalog.URL, close: client.Close}, nil

	case cfg.Catalog.File != "":
		static, err := catalog.LoadStatic(cfg.Catalog.File, cfg.Catalog.Permissive, log)
		if err != nil {
			return nil, err
		}
		handle := &CatalogHandle{Catalog: static, Source: cfg.Catalog.File}
		if watch {
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				if err := static.Watch(ctx); err != nil {
					log.Warn("Catalog file watcher stopped", "path", cfg.Catalog.File, "error", err)
				}
			}()
			handle.close = cancel
		}
		return handle, nil

	default:
		log.Warn("No catalog configured, accepting any user and book id")
		return &CatalogHandle{Catalog: catalog.Permissive{}, Source: "permissive"}, nil
	}
}
