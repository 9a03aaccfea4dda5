package repository

import (
	"context"
	"errors"
	"time"

	"github.com/joshdurbin/guarded-shortener/internal/domain"
)

// ErrCodeTaken is returned when an insert collides with an existing short code
var ErrCodeTaken = errors.New("short code already taken")

// URLRepository defines the interface for durable URL data operations
type URLRepository interface {
	// CreateIfAbsent inserts the record unless an active record with the same hash
	// exists, in which case that record is returned with created=false.
	// A short code collision returns ErrCodeTaken.
	CreateIfAbsent(ctx context.Context, url domain.NewURL) (*domain.ShortURL, bool, error)

	// GetByCode retrieves a record by short code, including expired ones
	GetByCode(ctx context.Context, shortCode string) (*domain.ShortURL, error)

	// GetActiveByHash retrieves the non-expired record for a URL hash
	GetActiveByHash(ctx context.Context, urlHash string, now time.Time) (*domain.ShortURL, error)

	// CodeExists checks if a short code is already assigned
	CodeExists(ctx context.Context, shortCode string) (bool, error)

	// AddClicks folds delta into the durable click count
	AddClicks(ctx context.Context, shortCode string, delta int64) error

	// InsertAnalytics stores click events for a URL
	InsertAnalytics(ctx context.Context, urlID int64, events []domain.ClickEvent) error

	// Ping checks the database is reachable
	Ping(ctx context.Context) error

	// Close closes the repository connection
	Close() error
}
