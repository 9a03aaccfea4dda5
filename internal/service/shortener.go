package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joshdurbin/guarded-shortener/internal/cache"
	"github.com/joshdurbin/guarded-shortener/internal/domain"
	"github.com/joshdurbin/guarded-shortener/internal/repository"
	"github.com/joshdurbin/guarded-shortener/internal/shortener"
)

const cacheTTL = 24 * time.Hour

// urlShortener implements URLShortener over a durable repository with a cache-aside transient store
type urlShortener struct {
	repo      repository.URLRepository
	store     cache.Store
	generator shortener.Generator
	config    shortener.Config
	now       func() time.Time
	queueSize int
	clicks    *clickRecorder
}

// Option configures the shortener service
type Option func(*urlShortener)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *urlShortener) {
		s.now = now
	}
}

// WithClickQueue sets how many clicks may wait for the background writer.
// Zero records every click inline.
func WithClickQueue(size int) Option {
	return func(s *urlShortener) {
		s.queueSize = size
	}
}

// NewURLShortener creates a new URL shortener service
func NewURLShortener(repo repository.URLRepository, store cache.Store, generator shortener.Generator, config shortener.Config, opts ...Option) URLShortener {
	s := &urlShortener{
		repo:      repo,
		store:     store,
		generator: generator,
		config:    config,
		now:       time.Now,
		queueSize: 1000,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.config.MaxAttempts <= 0 {
		s.config.MaxAttempts = shortener.DefaultConfig().MaxAttempts
	}
	s.clicks = newClickRecorder(store, s.queueSize)
	return s
}

// cacheFor is how long an entry may be served from the transient store
func (s *urlShortener) cacheFor(entry *domain.ShortURL) time.Duration {
	if entry.ExpiresAt == nil {
		return cacheTTL
	}
	if remaining := entry.ExpiresAt.Sub(s.now()); remaining < cacheTTL {
		return remaining
	}
	return cacheTTL
}

func (s *urlShortener) cacheEntry(ctx context.Context, entry *domain.ShortURL) {
	ttl := s.cacheFor(entry)
	if ttl <= 0 {
		return
	}
	if err := s.store.Set(ctx, cache.URLKey(entry.ShortCode), entry.OriginalURL, ttl); err != nil {
		log.Printf("[WARN] Failed to cache URL %s: %v", entry.ShortCode, err)
	}
	if err := s.store.Set(ctx, cache.HashKey(entry.URLHash), entry.ShortCode, ttl); err != nil {
		log.Printf("[WARN] Failed to cache hash for %s: %v", entry.ShortCode, err)
	}
}

// Shorten creates a short code for originalURL or returns the active one
func (s *urlShortener) Shorten(ctx context.Context, originalURL string) (*domain.ShortenResult, error) {
	originalURL = strings.TrimSpace(originalURL)
	normalized, err := shortener.Normalize(originalURL)
	if err != nil {
		return nil, domain.ErrInvalidURL
	}
	hash := shortener.Hash(normalized)

	code, found, err := s.store.Get(ctx, cache.HashKey(hash))
	if err != nil {
		log.Printf("[WARN] Hash cache lookup failed: %v", err)
	} else if found {
		return &domain.ShortenResult{ShortCode: code, Existing: true}, nil
	}

	now := s.now()
	existing, err := s.repo.GetActiveByHash(ctx, hash, now)
	switch {
	case err == nil:
		s.cacheEntry(ctx, existing)
		return &domain.ShortenResult{ShortCode: existing.ShortCode, Existing: true}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, domain.Unavailable(fmt.Errorf("failed to look up URL: %w", err))
	}

	var expiresAt *time.Time
	if s.config.DefaultTTL > 0 {
		t := now.Add(s.config.DefaultTTL)
		expiresAt = &t
	}

	for attempt := 0; attempt < s.config.MaxAttempts; attempt++ {
		candidate, err := s.generator.GenerateShortCode(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to generate short code: %w", err)
		}

		taken, err := s.repo.CodeExists(ctx, candidate)
		if err != nil {
			return nil, domain.Unavailable(fmt.Errorf("failed to check short code: %w", err))
		}
		if taken {
			continue
		}

		entry, created, err := s.repo.CreateIfAbsent(ctx, domain.NewURL{
			ShortCode:   candidate,
			OriginalURL: originalURL,
			URLHash:     hash,
			CreatedAt:   now,
			ExpiresAt:   expiresAt,
		})
		if errors.Is(err, repository.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return nil, domain.Unavailable(fmt.Errorf("failed to create URL: %w", err))
		}

		s.cacheEntry(ctx, entry)
		return &domain.ShortenResult{ShortCode: entry.ShortCode, Existing: !created}, nil
	}

	return nil, domain.ErrCodeGenerationExhausted
}

// Resolve returns the original URL for a short code and records the click
func (s *urlShortener) Resolve(ctx context.Context, shortCode string, meta *domain.ClickMetadata) (string, error) {
	target, found, err := s.store.Get(ctx, cache.URLKey(shortCode))
	if err != nil {
		log.Printf("[WARN] URL cache lookup failed for %s: %v", shortCode, err)
	} else if found {
		s.clicks.record(shortCode, meta, s.now())
		return target, nil
	}

	entry, err := s.repo.GetByCode(ctx, shortCode)
	if errors.Is(err, domain.ErrNotFound) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", domain.Unavailable(fmt.Errorf("failed to resolve short code: %w", err))
	}

	now := s.now()
	if entry.Expired(now) {
		return "", domain.ErrExpired
	}

	s.cacheEntry(ctx, entry)
	s.clicks.record(shortCode, meta, now)
	return entry.OriginalURL, nil
}

// GetStats combines the durable click count with clicks not yet reconciled
func (s *urlShortener) GetStats(ctx context.Context, shortCode string) (*domain.URLStats, error) {
	entry, err := s.repo.GetByCode(ctx, shortCode)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.Unavailable(fmt.Errorf("failed to get stats: %w", err))
	}

	pending, err := s.store.GetInt(ctx, cache.ClicksKey(shortCode))
	if err != nil {
		log.Printf("[WARN] Failed to read pending clicks for %s: %v", shortCode, err)
		pending = 0
	}

	return &domain.URLStats{
		ShortCode:   entry.ShortCode,
		OriginalURL: entry.OriginalURL,
		ClickCount:  entry.ClickCount + pending,
		CreatedAt:   entry.CreatedAt,
		ExpiresAt:   entry.ExpiresAt,
	}, nil
}

// Close drains queued clicks and closes the generator.
// The repository and store are owned by the caller.
func (s *urlShortener) Close() error {
	s.clicks.close()
	if err := s.generator.Close(); err != nil {
		return fmt.Errorf("failed to close generator: %w", err)
	}
	return nil
}

// Ensure urlShortener implements URLShortener interface
var _ URLShortener = (*urlShortener)(nil)
