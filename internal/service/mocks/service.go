package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/joshdurbin/guarded-shortener/internal/domain"
	"github.com/joshdurbin/guarded-shortener/internal/service"
)

// URLShortener is a mock implementation of service.URLShortener
type URLShortener struct {
	mock.Mock
}

// Shorten returns the code for a URL
func (m *URLShortener) Shorten(ctx context.Context, originalURL string) (*domain.ShortenResult, error) {
	args := m.Called(ctx, originalURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ShortenResult), args.Error(1)
}

// Resolve returns the target of a short code
func (m *URLShortener) Resolve(ctx context.Context, shortCode string, meta *domain.ClickMetadata) (string, error) {
	args := m.Called(ctx, shortCode, meta)
	return args.String(0), args.Error(1)
}

// GetStats returns statistics for a short code
func (m *URLShortener) GetStats(ctx context.Context, shortCode string) (*domain.URLStats, error) {
	args := m.Called(ctx, shortCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.URLStats), args.Error(1)
}

// Close closes the service
func (m *URLShortener) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Guard is a mock implementation of service.Guard
type Guard struct {
	mock.Mock
}

// CreateShortURL runs the create pipeline
func (m *Guard) CreateShortURL(ctx context.Context, req service.CreateRequest) (*domain.ShortenResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ShortenResult), args.Error(1)
}

// ResolveShortURL resolves a code for a visitor
func (m *Guard) ResolveShortURL(ctx context.Context, shortCode string, visit service.Visit) (string, error) {
	args := m.Called(ctx, shortCode, visit)
	return args.String(0), args.Error(1)
}

// GetStats returns statistics for a short code
func (m *Guard) GetStats(ctx context.Context, shortCode string) (*domain.URLStats, error) {
	args := m.Called(ctx, shortCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.URLStats), args.Error(1)
}

// IssueFormToken issues a form token
func (m *Guard) IssueFormToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// RateLimitStatus reports quota usage
func (m *Guard) RateLimitStatus(ctx context.Context, clientIP string, action domain.Action) (*domain.RateLimitStatus, error) {
	args := m.Called(ctx, clientIP, action)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RateLimitStatus), args.Error(1)
}

// Ping checks dependencies
func (m *Guard) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close closes the guard
func (m *Guard) Close() error {
	args := m.Called()
	return args.Error(0)
}

var (
	_ service.URLShortener = (*URLShortener)(nil)
	_ service.Guard        = (*Guard)(nil)
)
