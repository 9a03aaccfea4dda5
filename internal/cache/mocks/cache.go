package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/joshdurbin/guarded-shortener/internal/cache"
)

// Store is a mock implementation of cache.Store
type Store struct {
	mock.Mock
}

func (m *Store) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *Store) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *Store) GetDel(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *Store) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	args := m.Called(ctx, key, delta)
	return args.Get(0).(int64), args.Error(1)
}

func (m *Store) GetInt(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *Store) TakeInt(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *Store) Append(ctx context.Context, key, value string, maxLen int64) error {
	args := m.Called(ctx, key, value, maxLen)
	return args.Error(0)
}

func (m *Store) Range(ctx context.Context, key string) ([]string, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *Store) Drain(ctx context.Context, key string) ([]string, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *Store) WindowCheck(ctx context.Context, key string, cutoff float64) (cache.WindowState, error) {
	args := m.Called(ctx, key, cutoff)
	return args.Get(0).(cache.WindowState), args.Error(1)
}

func (m *Store) WindowAdd(ctx context.Context, key string, score float64, member string, ttl time.Duration) error {
	args := m.Called(ctx, key, score, member, ttl)
	return args.Error(0)
}

func (m *Store) WindowCount(ctx context.Context, key string, cutoff float64) (int64, error) {
	args := m.Called(ctx, key, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *Store) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *Store) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ cache.Store = (*Store)(nil)
