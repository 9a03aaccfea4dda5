package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joshdurbin/guarded-shortener/internal/cache"
)

type member struct {
	score float64
	name  string
}

// item holds one key; only the field matching its use is populated
type item struct {
	value     string
	list      []string
	window    []member
	expiresAt time.Time
}

func (i *item) live(now time.Time) bool {
	return i.expiresAt.IsZero() || now.Before(i.expiresAt)
}

// Cache implements cache.Store in process memory. It is meant for single-instance
// deployments and tests; quotas are not shared between processes.
type Cache struct {
	data     map[string]*item
	mutex    sync.RWMutex
	now      func() time.Time
	stopChan chan struct{}
	running  bool
}

// Option configures the memory cache
type Option func(*Cache)

// WithClock overrides the time source used for expiry
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a new in-memory cache
func New(opts ...Option) *Cache {
	c := &Cache{
		data:     make(map[string]*item),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// lookup returns the live item for key, dropping it if expired. Caller holds the write lock.
func (c *Cache) lookup(key string) (*item, bool) {
	it, exists := c.data[key]
	if !exists {
		return nil, false
	}
	if !it.live(c.now()) {
		delete(c.data, key)
		return nil, false
	}
	return it, true
}

func (c *Cache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

// Get returns the value stored at key
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	it, exists := c.lookup(key)
	if !exists {
		return "", false, nil
	}
	return it.value, true, nil
}

// Set stores value at key
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[key] = &item{value: value, expiresAt: c.expiry(ttl)}
	return nil
}

// Delete removes key
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.data, key)
	return nil
}

// GetDel returns and removes the value at key
func (c *Cache) GetDel(ctx context.Context, key string) (string, bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	it, exists := c.lookup(key)
	if !exists {
		return "", false, nil
	}
	delete(c.data, key)
	return it.value, true, nil
}

// IncrBy adds delta to the counter at key
func (c *Cache) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	it, exists := c.lookup(key)
	if !exists {
		it = &item{value: "0"}
		c.data[key] = it
	}
	current, err := strconv.ParseInt(it.value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("value at %s is not an integer", key)
	}
	current += delta
	it.value = strconv.FormatInt(current, 10)
	return current, nil
}

// GetInt returns the counter at key
func (c *Cache) GetInt(ctx context.Context, key string) (int64, error) {
	value, exists, err := c.Get(ctx, key)
	if err != nil || !exists {
		return 0, err
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("value at %s is not an integer", key)
	}
	return n, nil
}

// TakeInt returns the counter at key and removes it
func (c *Cache) TakeInt(ctx context.Context, key string) (int64, error) {
	value, exists, err := c.GetDel(ctx, key)
	if err != nil || !exists {
		return 0, err
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("value at %s is not an integer", key)
	}
	return n, nil
}

// Append pushes value onto the list at key
func (c *Cache) Append(ctx context.Context, key, value string, maxLen int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	it, exists := c.lookup(key)
	if !exists {
		it = &item{}
		c.data[key] = it
	}
	it.list = append(it.list, value)
	if maxLen > 0 && int64(len(it.list)) > maxLen {
		it.list = append([]string(nil), it.list[int64(len(it.list))-maxLen:]...)
	}
	return nil
}

// Range returns a copy of the list at key
func (c *Cache) Range(ctx context.Context, key string) ([]string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	it, exists := c.lookup(key)
	if !exists {
		return nil, nil
	}
	return append([]string(nil), it.list...), nil
}

// Drain returns the list at key and deletes it
func (c *Cache) Drain(ctx context.Context, key string) ([]string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	it, exists := c.lookup(key)
	if !exists {
		return nil, nil
	}
	delete(c.data, key)
	return it.list, nil
}

// WindowCheck prunes members at or below cutoff and reports what remains
func (c *Cache) WindowCheck(ctx context.Context, key string, cutoff float64) (cache.WindowState, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	it, exists := c.lookup(key)
	if !exists {
		return cache.WindowState{}, nil
	}

	kept := it.window[:0]
	for _, m := range it.window {
		if m.score > cutoff {
			kept = append(kept, m)
		}
	}
	it.window = kept

	state := cache.WindowState{Count: int64(len(kept))}
	if len(kept) > 0 {
		state.Oldest = kept[0].score
		state.HasOldest = true
	}
	return state, nil
}

// WindowAdd inserts member keeping the window ordered by score
func (c *Cache) WindowAdd(ctx context.Context, key string, score float64, name string, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	it, exists := c.lookup(key)
	if !exists {
		it = &item{}
		c.data[key] = it
	}

	for i, m := range it.window {
		if m.name == name {
			it.window = append(it.window[:i], it.window[i+1:]...)
			break
		}
	}
	idx := sort.Search(len(it.window), func(i int) bool {
		return it.window[i].score > score
	})
	it.window = append(it.window, member{})
	copy(it.window[idx+1:], it.window[idx:])
	it.window[idx] = member{score: score, name: name}
	it.expiresAt = c.expiry(ttl)
	return nil
}

// WindowCount counts members scored above cutoff
func (c *Cache) WindowCount(ctx context.Context, key string, cutoff float64) (int64, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	it, exists := c.data[key]
	if !exists || !it.live(c.now()) {
		return 0, nil
	}
	var count int64
	for _, m := range it.window {
		if m.score > cutoff {
			count++
		}
	}
	return count, nil
}

// Keys returns live keys that start with prefix, sorted
func (c *Cache) Keys(ctx context.Context, prefix string) ([]string, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	now := c.now()
	var keys []string
	for key, it := range c.data {
		if strings.HasPrefix(key, prefix) && it.live(now) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Ping always succeeds for the memory cache
func (c *Cache) Ping(ctx context.Context) error {
	return nil
}

// StartJanitor periodically evicts expired keys
func (c *Cache) StartJanitor(interval time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.running {
		return fmt.Errorf("janitor is already running")
	}
	if interval <= 0 {
		return fmt.Errorf("janitor interval must be positive, got: %v", interval)
	}

	c.running = true
	go c.janitor(interval, c.stopChan)
	return nil
}

func (c *Cache) janitor(interval time.Duration, stopChan <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-stopChan:
			return
		}
	}
}

func (c *Cache) evictExpired() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	for key, it := range c.data {
		if !it.live(now) {
			delete(c.data, key)
		}
	}
}

// Close stops the janitor if it is running
func (c *Cache) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.running {
		close(c.stopChan)
		c.running = false
		c.stopChan = make(chan struct{})
	}
	return nil
}

// Ensure Cache implements cache.Store
var _ cache.Store = (*Cache)(nil)
