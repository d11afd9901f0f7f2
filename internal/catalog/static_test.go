package catalog

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/listenupapp/readtime-server/internal/errors"
)

const catalogYAML = `
users:
  - id: user-1
    display_name: Ada
books:
  - id: book-1
    title: The Dispossessed
    cover_url: https://covers.example/book-1.jpg
`

func writeCatalog(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newStatic(t *testing.T, permissive bool) (*Static, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	writeCatalog(t, path, catalogYAML)

	s, err := LoadStatic(path, permissive, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return s, path
}

func TestStatic_Resolve(t *testing.T) {
	s, _ := newStatic(t, false)
	ctx := context.Background()

	u, err := s.ResolveUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.DisplayName)

	b, err := s.ResolveBook(ctx, "book-1")
	require.NoError(t, err)
	assert.Equal(t, "The Dispossessed", b.Title)
	assert.Equal(t, "https://covers.example/book-1.jpg", b.CoverURL)

	_, err = s.ResolveUser(ctx, "ghost")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	_, err = s.ResolveBook(ctx, "ghost")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestStatic_Permissive(t *testing.T) {
	s, _ := newStatic(t, true)

	b, err := s.ResolveBook(context.Background(), "unlisted")
	require.NoError(t, err)
	assert.Equal(t, "unlisted", b.ID)
	assert.Empty(t, b.Title)
}

func TestLoadStatic_Errors(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.DiscardHandler)

	_, err := LoadStatic(filepath.Join(dir, "missing.yaml"), false, logger)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	writeCatalog(t, bad, "users: [")
	_, err = LoadStatic(bad, false, logger)
	assert.Error(t, err)

	noID := filepath.Join(dir, "noid.yaml")
	writeCatalog(t, noID, "books:\n  - title: Orphan\n")
	_, err = LoadStatic(noID, false, logger)
	assert.Error(t, err)
}

func TestStatic_ReloadKeepsPreviousOnError(t *testing.T) {
	s, path := newStatic(t, false)

	writeCatalog(t, path, "users: [")
	require.Error(t, s.Reload())

	_, err := s.ResolveUser(context.Background(), "user-1")
	assert.NoError(t, err)
}

func TestStatic_WatchReloads(t *testing.T) {
	s, path := newStatic(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher a moment to register before editing.
	time.Sleep(50 * time.Millisecond)
	writeCatalog(t, path, catalogYAML+"  - id: book-2\n    title: Always Coming Home\n")

	require.Eventually(t, func() bool {
		_, err := s.ResolveBook(context.Background(), "book-2")
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)
}

func TestPermissive(t *testing.T) {
	u, err := Permissive{}.ResolveUser(context.Background(), "anyone")
	require.NoError(t, err)
	assert.Equal(t, "anyone", u.ID)
}
