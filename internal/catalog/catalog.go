// Package catalog resolves the user and book identifiers that reading
// sessions refer to. Sessions never own catalog data; they only need to know
// an id exists and, for calendar views, how to display a book.
package catalog

import (
	"context"

	"github.com/listenupapp/readtime-server/internal/domain"
	domainerrors "github.com/listenupapp/readtime-server/internal/errors"
)

// UserResolver confirms a user exists.
type UserResolver interface {
	ResolveUser(ctx context.Context, userID string) (*domain.User, error)
}

// BookResolver confirms a book exists and returns its display fields.
type BookResolver interface {
	ResolveBook(ctx context.Context, bookID string) (*domain.Book, error)
}

// Catalog resolves both users and books.
type Catalog interface {
	UserResolver
	BookResolver
}

// Permissive accepts every id as a bare identity. It is used when no
// catalog source is configured.
type Permissive struct{}

var _ Catalog = Permissive{}

// ResolveUser returns a user carrying only the id.
func (Permissive) ResolveUser(_ context.Context, userID string) (*domain.User, error) {
	return &domain.User{ID: userID}, nil
}

// ResolveBook returns a book carrying only the id.
func (Permissive) ResolveBook(_ context.Context, bookID string) (*domain.Book, error) {
	return &domain.Book{ID: bookID}, nil
}

func userNotFound(id string) error {
	return domainerrors.NotFoundf("user %s not found", id)
}

func bookNotFound(id string) error {
	return domainerrors.NotFoundf("book %s not found", id)
}
