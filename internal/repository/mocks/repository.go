package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/joshdurbin/guarded-shortener/internal/domain"
	"github.com/joshdurbin/guarded-shortener/internal/repository"
)

// URLRepository is a mock implementation of repository.URLRepository
type URLRepository struct {
	mock.Mock
}

// CreateIfAbsent inserts a record unless an active one with the same hash exists
func (m *URLRepository) CreateIfAbsent(ctx context.Context, url domain.NewURL) (*domain.ShortURL, bool, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.ShortURL), args.Bool(1), args.Error(2)
}

// GetByCode retrieves a record by its short code
func (m *URLRepository) GetByCode(ctx context.Context, shortCode string) (*domain.ShortURL, error) {
	args := m.Called(ctx, shortCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ShortURL), args.Error(1)
}

// GetActiveByHash retrieves the non-expired record for a URL hash
func (m *URLRepository) GetActiveByHash(ctx context.Context, urlHash string, now time.Time) (*domain.ShortURL, error) {
	args := m.Called(ctx, urlHash, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ShortURL), args.Error(1)
}

// CodeExists checks if a short code is already assigned
func (m *URLRepository) CodeExists(ctx context.Context, shortCode string) (bool, error) {
	args := m.Called(ctx, shortCode)
	return args.Bool(0), args.Error(1)
}

// AddClicks folds delta into the durable click count
func (m *URLRepository) AddClicks(ctx context.Context, shortCode string, delta int64) error {
	args := m.Called(ctx, shortCode, delta)
	return args.Error(0)
}

// InsertAnalytics stores click events for a URL
func (m *URLRepository) InsertAnalytics(ctx context.Context, urlID int64, events []domain.ClickEvent) error {
	args := m.Called(ctx, urlID, events)
	return args.Error(0)
}

// Ping checks the database is reachable
func (m *URLRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close closes the repository connection
func (m *URLRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ repository.URLRepository = (*URLRepository)(nil)
