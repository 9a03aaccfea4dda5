package redis

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/joshdurbin/guarded-shortener/internal/cache"
)

//go:embed window_check.lua
var windowCheckScript string

// Config holds connection settings for the Redis store
type Config struct {
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
}

// Cache implements cache.Store on Redis
type Cache struct {
	client      *goredis.Client
	windowCheck *goredis.Script
	timeout     time.Duration
}

// New connects to Redis and preloads the window script
func New(cfg Config) (*Cache, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	c, err := NewWithClient(client, cfg.Timeout)
	if err != nil {
		client.Close()
		return nil, err
	}
	return c, nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *goredis.Client, timeout time.Duration) (*Cache, error) {
	c := &Cache{
		client:      client,
		windowCheck: goredis.NewScript(windowCheckScript),
		timeout:     timeout,
	}

	ctx, cancel := c.withTimeout(context.Background())
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	if err := c.windowCheck.Load(ctx, client).Err(); err != nil {
		return nil, fmt.Errorf("failed to load window script: %w", err)
	}
	return c, nil
}

func (c *Cache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 6, 64)
}

// Get returns the value stored at key
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value at key
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Delete removes key
func (c *Cache) Delete(ctx context.Context, key string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// GetDel atomically returns and removes the value at key
func (c *Cache) GetDel(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	value, err := c.client.GetDel(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to getdel %s: %w", key, err)
	}
	return value, true, nil
}

// IncrBy adds delta to the counter at key
func (c *Cache) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	n, err := c.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	return n, nil
}

// GetInt returns the counter at key, zero when absent
func (c *Cache) GetInt(ctx context.Context, key string) (int64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	n, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %w", key, err)
	}
	return n, nil
}

// TakeInt atomically returns the counter at key and removes it
func (c *Cache) TakeInt(ctx context.Context, key string) (int64, error) {
	value, exists, err := c.GetDel(ctx, key)
	if err != nil || !exists {
		return 0, err
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("value at %s is not an integer: %w", key, err)
	}
	return n, nil
}

// Append pushes value and trims the list to its newest maxLen entries
func (c *Cache) Append(ctx context.Context, key, value string, maxLen int64) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, key, value)
		if maxLen > 0 {
			pipe.LTrim(ctx, key, -maxLen, -1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", key, err)
	}
	return nil
}

// Range returns every entry in the list at key
func (c *Cache) Range(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	entries, err := c.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read list %s: %w", key, err)
	}
	return entries, nil
}

// Drain reads and deletes the list at key in one transaction
func (c *Cache) Drain(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var lrange *goredis.StringSliceCmd
	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		lrange = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to drain list %s: %w", key, err)
	}
	return lrange.Val(), nil
}

// WindowCheck prunes and counts the window in a single script call
func (c *Cache) WindowCheck(ctx context.Context, key string, cutoff float64) (cache.WindowState, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	values, err := c.windowCheck.Run(ctx, c.client, []string{key}, formatScore(cutoff)).Slice()
	if err != nil {
		return cache.WindowState{}, fmt.Errorf("failed to check window %s: %w", key, err)
	}
	if len(values) != 2 {
		return cache.WindowState{}, fmt.Errorf("unexpected window script response for %s", key)
	}

	count, _ := values[0].(int64)
	state := cache.WindowState{Count: count}
	if raw, ok := values[1].(string); ok && raw != "" {
		oldest, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return cache.WindowState{}, fmt.Errorf("invalid oldest score for %s: %w", key, err)
		}
		state.Oldest = oldest
		state.HasOldest = true
	}
	return state, nil
}

// WindowAdd inserts the member and refreshes the expiry atomically
func (c *Cache) WindowAdd(ctx context.Context, key string, score float64, member string, ttl time.Duration) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, key, goredis.Z{Score: score, Member: member})
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record in window %s: %w", key, err)
	}
	return nil
}

// WindowCount counts members scored above cutoff
func (c *Cache) WindowCount(ctx context.Context, key string, cutoff float64) (int64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	n, err := c.client.ZCount(ctx, key, "("+formatScore(cutoff), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count window %s: %w", key, err)
	}
	return n, nil
}

// Keys scans for keys starting with prefix
func (c *Cache) Keys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := c.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s*: %w", prefix, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// Ping checks Redis is reachable
func (c *Cache) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ensure Cache implements cache.Store
var _ cache.Store = (*Cache)(nil)
