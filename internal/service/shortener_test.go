package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/joshdurbin/guarded-shortener/internal/cache/memory"
	cacheMocks "github.com/joshdurbin/guarded-shortener/internal/cache/mocks"
	"github.com/joshdurbin/guarded-shortener/internal/domain"
	"github.com/joshdurbin/guarded-shortener/internal/repository"
	repoMocks "github.com/joshdurbin/guarded-shortener/internal/repository/mocks"
	"github.com/joshdurbin/guarded-shortener/internal/shortener"
)

const exampleURL = "https://example.com/page"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func hashOf(t *testing.T, raw string) string {
	t.Helper()
	normalized, err := shortener.Normalize(raw)
	require.NoError(t, err)
	return shortener.Hash(normalized)
}

type fixture struct {
	clock *fakeClock
	store *memory.Cache
	repo  *repoMocks.URLRepository
	svc   URLShortener
}

func newFixture(t *testing.T, config shortener.Config, codes ...string) *fixture {
	t.Helper()
	clock := newClock()
	f := &fixture{
		clock: clock,
		store: memory.New(memory.WithClock(clock.Now)),
		repo:  &repoMocks.URLRepository{},
	}
	f.svc = NewURLShortener(f.repo, f.store, NewTestGenerator(codes...), config,
		WithClock(clock.Now), WithClickQueue(0))
	return f
}

func (f *fixture) cached(t *testing.T, key string) (string, bool) {
	t.Helper()
	value, found, err := f.store.Get(context.Background(), key)
	require.NoError(t, err)
	return value, found
}

func TestURLShortener_Shorten(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name         string
		codes        []string
		setupMocks   func(*fixture, string)
		wantCode     string
		wantExisting bool
		wantErr      error
	}{
		{
			name:  "new URL",
			codes: []string{"abc1234"},
			setupMocks: func(f *fixture, hash string) {
				f.repo.On("GetActiveByHash", ctx, hash, f.clock.Now()).Return(nil, domain.ErrNotFound)
				f.repo.On("CodeExists", ctx, "abc1234").Return(false, nil)
				f.repo.On("CreateIfAbsent", ctx, mock.AnythingOfType("domain.NewURL")).
					Return(&domain.ShortURL{ID: 1, ShortCode: "abc1234", OriginalURL: exampleURL, URLHash: hash}, true, nil)
			},
			wantCode: "abc1234",
		},
		{
			name: "active record in database",
			setupMocks: func(f *fixture, hash string) {
				f.repo.On("GetActiveByHash", ctx, hash, f.clock.Now()).
					Return(&domain.ShortURL{ID: 7, ShortCode: "old7777", OriginalURL: exampleURL, URLHash: hash}, nil)
			},
			wantCode:     "old7777",
			wantExisting: true,
		},
		{
			name:  "collisions are retried",
			codes: []string{"taken01", "racer01", "fresh01"},
			setupMocks: func(f *fixture, hash string) {
				f.repo.On("GetActiveByHash", ctx, hash, f.clock.Now()).Return(nil, domain.ErrNotFound)
				f.repo.On("CodeExists", ctx, "taken01").Return(true, nil)
				f.repo.On("CodeExists", ctx, "racer01").Return(false, nil)
				f.repo.On("CodeExists", ctx, "fresh01").Return(false, nil)
				f.repo.On("CreateIfAbsent", ctx, mock.MatchedBy(func(u domain.NewURL) bool { return u.ShortCode == "racer01" })).
					Return(nil, false, repository.ErrCodeTaken)
				f.repo.On("CreateIfAbsent", ctx, mock.MatchedBy(func(u domain.NewURL) bool { return u.ShortCode == "fresh01" })).
					Return(&domain.ShortURL{ID: 2, ShortCode: "fresh01", OriginalURL: exampleURL, URLHash: hash}, true, nil)
			},
			wantCode: "fresh01",
		},
		{
			name:  "concurrent duplicate converges",
			codes: []string{"mine001"},
			setupMocks: func(f *fixture, hash string) {
				f.repo.On("GetActiveByHash", ctx, hash, f.clock.Now()).Return(nil, domain.ErrNotFound)
				f.repo.On("CodeExists", ctx, "mine001").Return(false, nil)
				f.repo.On("CreateIfAbsent", ctx, mock.AnythingOfType("domain.NewURL")).
					Return(&domain.ShortURL{ID: 3, ShortCode: "them001", OriginalURL: exampleURL, URLHash: hash}, false, nil)
			},
			wantCode:     "them001",
			wantExisting: true,
		},
		{
			name: "generation exhausted",
			setupMocks: func(f *fixture, hash string) {
				f.repo.On("GetActiveByHash", ctx, hash, f.clock.Now()).Return(nil, domain.ErrNotFound)
				f.repo.On("CodeExists", ctx, mock.AnythingOfType("string")).Return(true, nil).Times(10)
			},
			wantErr: domain.ErrCodeGenerationExhausted,
		},
		{
			name: "database failure",
			setupMocks: func(f *fixture, hash string) {
				f.repo.On("GetActiveByHash", ctx, hash, f.clock.Now()).Return(nil, errors.New("connection reset"))
			},
			wantErr: domain.ErrStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, shortener.DefaultConfig(), tt.codes...)
			hash := hashOf(t, exampleURL)
			tt.setupMocks(f, hash)

			result, err := f.svc.Shorten(ctx, exampleURL)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, result)
				f.repo.AssertExpectations(t)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, result.ShortCode)
			assert.Equal(t, tt.wantExisting, result.Existing)

			code, found := f.cached(t, "urlhash:"+hash)
			assert.True(t, found)
			assert.Equal(t, tt.wantCode, code)
			target, found := f.cached(t, "url:"+tt.wantCode)
			assert.True(t, found)
			assert.Equal(t, exampleURL, target)

			f.repo.AssertExpectations(t)
		})
	}
}

func TestURLShortener_Shorten_CacheHit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, shortener.DefaultConfig())
	require.NoError(t, f.store.Set(ctx, "urlhash:"+hashOf(t, exampleURL), "cached1", time.Hour))

	// Equivalent spelling hits the same cache entry
	result, err := f.svc.Shorten(ctx, "HTTPS://Example.com:443/page/")
	require.NoError(t, err)
	assert.Equal(t, &domain.ShortenResult{ShortCode: "cached1", Existing: true}, result)
	f.repo.AssertNotCalled(t, "GetActiveByHash", mock.Anything, mock.Anything, mock.Anything)
}

func TestURLShortener_Shorten_InvalidURL(t *testing.T) {
	f := newFixture(t, shortener.DefaultConfig())

	for _, raw := range []string{"", "not a url", "http://%zz"} {
		_, err := f.svc.Shorten(context.Background(), raw)
		assert.ErrorIs(t, err, domain.ErrInvalidURL, raw)
	}
}

func TestURLShortener_Shorten_DefaultTTL(t *testing.T) {
	ctx := context.Background()
	config := shortener.DefaultConfig()
	config.DefaultTTL = 2 * time.Hour
	f := newFixture(t, config, "ttl1234")
	hash := hashOf(t, exampleURL)
	expiresAt := f.clock.Now().Add(2 * time.Hour)

	f.repo.On("GetActiveByHash", ctx, hash, f.clock.Now()).Return(nil, domain.ErrNotFound)
	f.repo.On("CodeExists", ctx, "ttl1234").Return(false, nil)
	f.repo.On("CreateIfAbsent", ctx, mock.MatchedBy(func(u domain.NewURL) bool {
		return u.ExpiresAt != nil && u.ExpiresAt.Equal(expiresAt) && u.OriginalURL == exampleURL
	})).Return(&domain.ShortURL{ID: 1, ShortCode: "ttl1234", OriginalURL: exampleURL, URLHash: hash, ExpiresAt: &expiresAt}, true, nil)

	_, err := f.svc.Shorten(ctx, exampleURL)
	require.NoError(t, err)

	// Cache entries never outlive the record
	f.clock.Advance(2 * time.Hour)
	_, found := f.cached(t, "url:ttl1234")
	assert.False(t, found)
}

func TestURLShortener_Resolve(t *testing.T) {
	ctx := context.Background()
	meta := &domain.ClickMetadata{IPHash: "iphash", UserAgent: "Mozilla/5.0", Referer: "https://ref.example"}

	t.Run("cache hit records click", func(t *testing.T) {
		f := newFixture(t, shortener.DefaultConfig())
		require.NoError(t, f.store.Set(ctx, "url:abc1234", exampleURL, time.Hour))

		target, err := f.svc.Resolve(ctx, "abc1234", meta)
		require.NoError(t, err)
		assert.Equal(t, exampleURL, target)

		clicks, err := f.store.GetInt(ctx, "clicks:abc1234")
		require.NoError(t, err)
		assert.Equal(t, int64(1), clicks)

		entries, err := f.store.Range(ctx, "analytics:abc1234")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		var event domain.ClickEvent
		require.NoError(t, json.Unmarshal([]byte(entries[0]), &event))
		assert.Equal(t, "iphash", event.IPHash)
		assert.Equal(t, "https://ref.example", event.Referer)
		assert.True(t, f.clock.Now().Equal(event.Time))
		f.repo.AssertNotCalled(t, "GetByCode", mock.Anything, mock.Anything)
	})

	t.Run("cache miss loads and caches", func(t *testing.T) {
		f := newFixture(t, shortener.DefaultConfig())
		f.repo.On("GetByCode", ctx, "abc1234").
			Return(&domain.ShortURL{ID: 1, ShortCode: "abc1234", OriginalURL: exampleURL, URLHash: "h"}, nil).Once()

		for i := 0; i < 3; i++ {
			target, err := f.svc.Resolve(ctx, "abc1234", meta)
			require.NoError(t, err)
			assert.Equal(t, exampleURL, target)
		}

		clicks, err := f.store.GetInt(ctx, "clicks:abc1234")
		require.NoError(t, err)
		assert.Equal(t, int64(3), clicks)
		f.repo.AssertExpectations(t)
	})

	t.Run("expired", func(t *testing.T) {
		f := newFixture(t, shortener.DefaultConfig())
		expired := f.clock.Now().Add(-time.Minute)
		f.repo.On("GetByCode", ctx, "old1234").
			Return(&domain.ShortURL{ShortCode: "old1234", OriginalURL: exampleURL, ExpiresAt: &expired}, nil)

		_, err := f.svc.Resolve(ctx, "old1234", meta)
		assert.ErrorIs(t, err, domain.ErrExpired)
		assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

		clicks, err := f.store.GetInt(ctx, "clicks:old1234")
		require.NoError(t, err)
		assert.Zero(t, clicks)
	})

	t.Run("not found", func(t *testing.T) {
		f := newFixture(t, shortener.DefaultConfig())
		f.repo.On("GetByCode", ctx, "nope123").Return(nil, domain.ErrNotFound)

		_, err := f.svc.Resolve(ctx, "nope123", meta)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("without metadata only counts", func(t *testing.T) {
		f := newFixture(t, shortener.DefaultConfig())
		require.NoError(t, f.store.Set(ctx, "url:abc1234", exampleURL, time.Hour))

		_, err := f.svc.Resolve(ctx, "abc1234", nil)
		require.NoError(t, err)

		entries, err := f.store.Range(ctx, "analytics:abc1234")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestURLShortener_Resolve_TruncatesHeaders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, shortener.DefaultConfig())
	require.NoError(t, f.store.Set(ctx, "url:abc1234", exampleURL, time.Hour))

	long := strings.Repeat("é", 600)
	_, err := f.svc.Resolve(ctx, "abc1234", &domain.ClickMetadata{UserAgent: long, Referer: long})
	require.NoError(t, err)

	entries, err := f.store.Range(ctx, "analytics:abc1234")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	var event domain.ClickEvent
	require.NoError(t, json.Unmarshal([]byte(entries[0]), &event))
	assert.Equal(t, 500, len([]rune(event.UserAgent)))
	assert.Equal(t, 500, len([]rune(event.Referer)))
}

func TestURLShortener_GetStats(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	f := newFixture(t, shortener.DefaultConfig())
	f.repo.On("GetByCode", ctx, "abc1234").
		Return(&domain.ShortURL{ShortCode: "abc1234", OriginalURL: exampleURL, ClickCount: 5, CreatedAt: createdAt}, nil)
	_, err := f.store.IncrBy(ctx, "clicks:abc1234", 3)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		stats, err := f.svc.GetStats(ctx, "abc1234")
		require.NoError(t, err)
		assert.Equal(t, &domain.URLStats{
			ShortCode:   "abc1234",
			OriginalURL: exampleURL,
			ClickCount:  8,
			CreatedAt:   createdAt,
		}, stats)
	}

	f.repo.On("GetByCode", ctx, "missing").Return(nil, domain.ErrNotFound)
	_, err = f.svc.GetStats(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestURLShortener_GetStats_TransientFailure(t *testing.T) {
	ctx := context.Background()
	repo := &repoMocks.URLRepository{}
	store := &cacheMocks.Store{}
	repo.On("GetByCode", ctx, "abc1234").Return(&domain.ShortURL{ShortCode: "abc1234", ClickCount: 5}, nil)
	store.On("GetInt", ctx, "clicks:abc1234").Return(int64(0), errors.New("redis down"))

	svc := NewURLShortener(repo, store, NewTestGenerator(), shortener.DefaultConfig(), WithClickQueue(0))
	stats, err := svc.GetStats(ctx, "abc1234")
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.ClickCount)
}

func TestURLShortener_CloseDrainsClicks(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.Set(ctx, "url:abc1234", exampleURL, time.Hour))

	svc := NewURLShortener(&repoMocks.URLRepository{}, store, NewTestGenerator(), shortener.DefaultConfig(), WithClickQueue(2))
	for i := 0; i < 20; i++ {
		_, err := svc.Resolve(ctx, "abc1234", &domain.ClickMetadata{IPHash: "h"})
		require.NoError(t, err)
	}
	require.NoError(t, svc.Close())

	clicks, err := store.GetInt(ctx, "clicks:abc1234")
	require.NoError(t, err)
	assert.Equal(t, int64(20), clicks)

	entries, err := store.Range(ctx, "analytics:abc1234")
	require.NoError(t, err)
	assert.Len(t, entries, 20)

	// Clicks after close are written inline
	_, err = svc.Resolve(ctx, "abc1234", nil)
	require.NoError(t, err)
	clicks, err = store.GetInt(ctx, "clicks:abc1234")
	require.NoError(t, err)
	assert.Equal(t, int64(21), clicks)
}
