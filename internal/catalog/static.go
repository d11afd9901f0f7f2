package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/listenupapp/readtime-server/internal/domain"
	"github.com/listenupapp/readtime-server/internal/metrics"
)

// reloadSettleDelay coalesces the burst of events editors emit on save.
const reloadSettleDelay = 100 * time.Millisecond

// File is the on-disk catalog format.
//
//	users:
//	  - id: user-1
//	    display_name: Ada
//	books:
//	  - id: book-1
//	    title: The Left Hand of Darkness
//	    cover_url: https://covers.example/book-1.jpg
type File struct {
	Users []domain.User `yaml:"users"`
	Books []domain.Book `yaml:"books"`
}

// Static serves users and books from a YAML file held in memory.
// Watch keeps it in sync with the file.
type Static struct {
	path       string
	permissive bool
	logger     *slog.Logger

	mu    sync.RWMutex
	users map[string]domain.User
	books map[string]domain.Book
}

var _ Catalog = (*Static)(nil)

// LoadStatic reads the catalog at path. With permissive set, ids missing
// from the file resolve as bare identities instead of NotFound.
func LoadStatic(path string, permissive bool, logger *slog.Logger) (*Static, error) {
	s := &Static{
		path:       path,
		permissive: permissive,
		logger:     logger,
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the catalog file. On error the previous contents stay in place.
func (s *Static) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read catalog %s: %w", s.path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse catalog %s: %w", s.path, err)
	}

	users := make(map[string]domain.User, len(f.Users))
	for _, u := range f.Users {
		if u.ID == "" {
			return fmt.Errorf("parse catalog %s: user without id", s.path)
		}
		users[u.ID] = u
	}
	books := make(map[string]domain.Book, len(f.Books))
	for _, b := range f.Books {
		if b.ID == "" {
			return fmt.Errorf("parse catalog %s: book without id", s.path)
		}
		books[b.ID] = b
	}

	s.mu.Lock()
	s.users = users
	s.books = books
	s.mu.Unlock()

	s.logger.Debug("catalog loaded", "path", s.path, "users", len(users), "books", len(books))
	return nil
}

// ResolveUser returns the user with the given id.
func (s *Static) ResolveUser(_ context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	u, ok := s.users[userID]
	s.mu.RUnlock()

	switch {
	case ok:
		metrics.CatalogLookups.WithLabelValues("user", "hit").Inc()
		return &u, nil
	case s.permissive:
		metrics.CatalogLookups.WithLabelValues("user", "permissive").Inc()
		return &domain.User{ID: userID}, nil
	default:
		metrics.CatalogLookups.WithLabelValues("user", "not_found").Inc()
		return nil, userNotFound(userID)
	}
}

// ResolveBook returns the book with the given id.
func (s *Static) ResolveBook(_ context.Context, bookID string) (*domain.Book, error) {
	s.mu.RLock()
	b, ok := s.books[bookID]
	s.mu.RUnlock()

	switch {
	case ok:
		metrics.CatalogLookups.WithLabelValues("book", "hit").Inc()
		return &b, nil
	case s.permissive:
		metrics.CatalogLookups.WithLabelValues("book", "permissive").Inc()
		return &domain.Book{ID: bookID}, nil
	default:
		metrics.CatalogLookups.WithLabelValues("book", "not_found").Inc()
		return nil, bookNotFound(bookID)
	}
}

// Watch reloads the catalog whenever the file changes, until ctx is done.
// The parent directory is watched so editors that replace the file by
// rename are picked up.
func (s *Static) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	target := filepath.Clean(s.path)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadSettleDelay, s.reloadLogged)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("catalog watcher error", "error", err)
		}
	}
}

func (s *Static) reloadLogged() {
	if err := s.Reload(); err != nil {
		metrics.CatalogReloads.WithLabelValues("error").Inc()
		s.logger.Error("catalog reload failed, keeping previous contents", "path", s.path, "error", err)
		return
	}
	metrics.CatalogReloads.WithLabelValues("success").Inc()
	s.logger.Info("catalog reloaded", "path", s.path)
}
