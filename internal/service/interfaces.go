package service

import (
	"context"

	"github.com/joshdurbin/guarded-shortener/internal/domain"
)

// URLShortener defines the interface for URL shortening operations
type URLShortener interface {
	// Shorten returns the code for a URL, reusing the active code when the URL was seen before
	Shorten(ctx context.Context, originalURL string) (*domain.ShortenResult, error)

	// Resolve returns the target of a short code and records the click
	Resolve(ctx context.Context, shortCode string, meta *domain.ClickMetadata) (string, error)

	// GetStats returns the record for a short code with its live click total
	GetStats(ctx context.Context, shortCode string) (*domain.URLStats, error)

	// Close flushes pending click writes and releases the generator
	Close() error
}

// CreateRequest is a shorten submission as received from a client
type CreateRequest struct {
	Fields         map[string]any
	ClientIP       string
	UserAgent      string
	Accept         string
	AcceptLanguage string
}

// Visit describes the client following a short link
type Visit struct {
	ClientIP  string
	UserAgent string
	Referer   string
}

// Guard runs the abuse checks in front of the shortener
type Guard interface {
	// CreateShortURL applies rate limiting, bot scoring and URL safety checks before shortening
	CreateShortURL(ctx context.Context, req CreateRequest) (*domain.ShortenResult, error)

	// ResolveShortURL applies the click rate limit and resolves a code
	ResolveShortURL(ctx context.Context, shortCode string, visit Visit) (string, error)

	// GetStats validates the code and returns its statistics
	GetStats(ctx context.Context, shortCode string) (*domain.URLStats, error)

	// IssueFormToken issues a single-use token for the create form
	IssueFormToken(ctx context.Context) (string, error)

	// RateLimitStatus reports quota usage for a client without consuming any
	RateLimitStatus(ctx context.Context, clientIP string, action domain.Action) (*domain.RateLimitStatus, error)

	// Ping checks every backing store
	Ping(ctx context.Context) error

	// Close releases the shortener
	Close() error
}
