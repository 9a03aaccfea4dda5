package cache

import (
	"context"
	"time"
)

// KV is plain keyed storage with expiry
type KV interface {
	// Get returns the value stored at key and whether it exists
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value at key; a zero ttl means no expiry
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key
	Delete(ctx context.Context, key string) error

	// GetDel atomically returns and removes the value at key
	GetDel(ctx context.Context, key string) (string, bool, error)
}

// Counters are integer values updated atomically
type Counters interface {
	// IncrBy adds delta to the counter at key and returns the new value
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)

	// GetInt returns the counter at key, zero when absent
	GetInt(ctx context.Context, key string) (int64, error)

	// TakeInt atomically returns the counter at key and resets it
	TakeInt(ctx context.Context, key string) (int64, error)
}

// Lists are append-only staging lists
type Lists interface {
	// Append pushes value onto the list at key, keeping at most maxLen newest entries
	Append(ctx context.Context, key, value string, maxLen int64) error

	// Range returns every entry in the list at key
	Range(ctx context.Context, key string) ([]string, error)

	// Drain atomically returns every entry in the list at key and deletes it
	Drain(ctx context.Context, key string) ([]string, error)
}

// WindowState is the result of pruning and counting a sliding window
type WindowState struct {
	Count     int64
	Oldest    float64
	HasOldest bool
}

// Windows are scored sets used as sliding windows. Scores are unix seconds.
type Windows interface {
	// WindowCheck removes members scored at or below cutoff, then reports the count and oldest score
	WindowCheck(ctx context.Context, key string, cutoff float64) (WindowState, error)

	// WindowAdd inserts member with score and refreshes the key expiry
	WindowAdd(ctx context.Context, key string, score float64, member string, ttl time.Duration) error

	// WindowCount counts members scored above cutoff without modifying the set
	WindowCount(ctx context.Context, key string, cutoff float64) (int64, error)
}

// Store is the full transient store used for caching, quotas, tokens and click staging
type Store interface {
	KV
	Counters
	Lists
	Windows

	// Keys returns every key that starts with prefix
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Ping checks the store is reachable
	Ping(ctx context.Context) error

	// Close releases the store's resources
	Close() error
}
