package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/listenupapp/readtime-server/internal/domain"
	domainerrors "github.com/listenupapp/readtime-server/internal/errors"
	"github.com/listenupapp/readtime-server/internal/metrics"
	"github.com/listenupapp/readtime-server/internal/ratelimit"
)

// limiterKey is the single outbound bucket shared by all catalog calls.
const limiterKey = "catalog"

// ClientConfig configures a remote catalog client.
type ClientConfig struct {
	BaseURL   string
	Timeout   time.Duration
	CacheTTL  time.Duration
	CacheSize int
	RPS       float64
}

// Client resolves ids against a remote catalog service:
//
//	GET {base}/users/{id}
//	GET {base}/books/{id}
//
// Successful lookups are cached for CacheTTL. Unknown ids are not cached.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	logger  *slog.Logger

	users *expirable.LRU[string, *domain.User]
	books *expirable.LRU[string, *domain.Book]
}

var _ Catalog = (*Client)(nil)

// NewClient creates a remote catalog client.
func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid catalog url %q: %w", cfg.BaseURL, err)
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	burst := max(int(cfg.RPS), 1)

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: ratelimit.New(cfg.RPS, burst),
		logger:  logger,
		users:   expirable.NewLRU[string, *domain.User](cfg.CacheSize, nil, cfg.CacheTTL),
		books:   expirable.NewLRU[string, *domain.Book](cfg.CacheSize, nil, cfg.CacheTTL),
	}, nil
}

// Close releases the client's rate limiter.
func (c *Client) Close() {
	c.limiter.Stop()
}

// ResolveUser fetches a user, consulting the cache first.
func (c *Client) ResolveUser(ctx context.Context, userID string) (*domain.User, error) {
	if u, ok := c.users.Get(userID); ok {
		metrics.CatalogLookups.WithLabelValues("user", "hit").Inc()
		return u, nil
	}

	var u domain.User
	found, err := c.fetch(ctx, "users", userID, &u)
	if err != nil {
		metrics.CatalogLookups.WithLabelValues("user", "error").Inc()
		return nil, err
	}
	if !found {
		metrics.CatalogLookups.WithLabelValues("user", "not_found").Inc()
		return nil, userNotFound(userID)
	}
	if u.ID == "" {
		u.ID = userID
	}

	metrics.CatalogLookups.WithLabelValues("user", "miss").Inc()
	c.users.Add(userID, &u)
	return &u, nil
}

// ResolveBook fetches a book, consulting the cache first.
func (c *Client) ResolveBook(ctx context.Context, bookID string) (*domain.Book, error) {
	if b, ok := c.books.Get(bookID); ok {
		metrics.CatalogLookups.WithLabelValues("book", "hit").Inc()
		return b, nil
	}

	var b domain.Book
	found, err := c.fetch(ctx, "books", bookID, &b)
	if err != nil {
		metrics.CatalogLookups.WithLabelValues("book", "error").Inc()
		return nil, err
	}
	if !found {
		metrics.CatalogLookups.WithLabelValues("book", "not_found").Inc()
		return nil, bookNotFound(bookID)
	}
	if b.ID == "" {
		b.ID = bookID
	}

	metrics.CatalogLookups.WithLabelValues("book", "miss").Inc()
	c.books.Add(bookID, &b)
	return &b, nil
}

// fetch GETs {base}/{kind}/{id} into out. found is false on 404.
func (c *Client) fetch(ctx context.Context, kind, id string, out any) (found bool, err error) {
	if err := c.limiter.Wait(ctx, limiterKey); err != nil {
		return false, err
	}

	endpoint := c.baseURL + "/" + kind + "/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return false, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, domainerrors.Unavailable(err, "catalog "+kind+" lookup failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 500:
		c.logger.Warn("catalog unavailable", "kind", kind, "id", id, "status", resp.StatusCode)
		return false, domainerrors.Unavailable(fmt.Errorf("status %d", resp.StatusCode), "catalog "+kind+" lookup failed")
	case resp.StatusCode >= 300:
		c.logger.Warn("catalog returned unexpected status", "kind", kind, "id", id, "status", resp.StatusCode)
		return false, domainerrors.Internalf("catalog %s lookup returned status %d", kind, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, domainerrors.Wrapf(err, domainerrors.CodeInternal, "decode catalog %s response", kind)
	}
	return true, nil
}
