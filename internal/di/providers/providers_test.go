package providers

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/readtime-server/internal/catalog"
	"github.com/listenupapp/readtime-server/internal/config"
	domainerrors "github.com/listenupapp/readtime-server/internal/errors"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	return &config.Config{
		App:     config.AppConfig{Environment: "development"},
		Storage: config.StorageConfig{DataPath: t.TempDir(), Backend: backend},
	}
}

func TestOpenStore_Backends(t *testing.T) {
	for _, backend := range []string{config.BackendSQLite, config.BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend)

			handle, err := OpenStore(cfg, slog.New(slog.DiscardHandler))
			require.NoError(t, err)
			defer func() { assert.NoError(t, handle.Shutdown()) }()

			assert.Equal(t, backend, handle.Backend)
			assert.Equal(t, cfg.DatabasePath(), handle.Path)
			assert.NoError(t, handle.Ping(context.Background()))
		})
	}
}

func TestOpenStore_UnknownBackend(t *testing.T) {
	_, err := OpenStore(testConfig(t, "postgres"), slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}

func TestOpenCatalog_DefaultsToPermissive(t *testing.T) {
	handle, err := OpenCatalog(testConfig(t, config.BackendSQLite), slog.New(slog.DiscardHandler), false)
	require.NoError(t, err)
	assert.Equal(t, "permissive", handle.Source)
	assert.IsType(t, catalog.Permissive{}, handle.Catalog)

	user, err := handle.ResolveUser(context.Background(), "anyone")
	require.NoError(t, err)
	assert.Equal(t, "anyone", user.ID)
}

func TestOpenCatalog_File(t *testing.T) {
	cfg := testConfig(t, config.BackendSQLite)
	cfg.Catalog.File = filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(cfg.Catalog.File, []byte("users:\n  - id: u1\nbooks: []\n"), 0o644))

	handle, err := OpenCatalog(cfg, slog.New(slog.DiscardHandler), true)
	require.NoError(t, err)
	defer func() { assert.NoError(t, handle.Shutdown()) }()

	_, err = handle.ResolveUser(context.Background(), "u1")
	assert.NoError(t, err)
	_, err = handle.ResolveUser(context.Background(), "u2")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestOpenCatalog_InvalidURL(t *testing.T) {
	cfg := testConfig(t, config.BackendSQLite)
	cfg.Catalog.URL = "not a url"

	_, err := OpenCatalog(cfg, slog.New(slog.DiscardHandler), false)
	assert.Error(t, err)
}
