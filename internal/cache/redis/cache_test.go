package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	c, err := New(Config{Addr: addr, Timeout: time.Second})
	if err != nil {
		t.Skipf("Skipping integration test: Redis not available (%v)", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func testKey(t *testing.T, name string) string {
	return fmt.Sprintf("test:%s:%s:%d", t.Name(), name, time.Now().UnixNano())
}

func TestCache_KV(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := testKey(t, "kv")
	defer c.Delete(ctx, key)

	_, exists, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.Set(ctx, key, "https://example.com", time.Minute))

	value, exists, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "https://example.com", value)

	value, exists, err = c.GetDel(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "https://example.com", value)

	_, exists, err = c.GetDel(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCache_Counters(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := testKey(t, "clicks")
	defer c.Delete(ctx, key)

	n, err := c.GetInt(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = c.IncrBy(ctx, key, 1)
	require.NoError(t, err)
	n, err = c.IncrBy(ctx, key, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	taken, err := c.TakeInt(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), taken)

	n, err = c.GetInt(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCache_Lists(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := testKey(t, "analytics")
	defer c.Delete(ctx, key)

	for i := 0; i < 4; i++ {
		require.NoError(t, c.Append(ctx, key, fmt.Sprintf("e%d", i), 3))
	}

	entries, err := c.Range(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2", "e3"}, entries)

	drained, err := c.Drain(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2", "e3"}, drained)

	entries, err = c.Range(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCache_Windows(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := testKey(t, "window")
	defer c.Delete(ctx, key)

	state, err := c.WindowCheck(ctx, key, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.Count)
	assert.False(t, state.HasOldest)

	require.NoError(t, c.WindowAdd(ctx, key, 100.5, "a", time.Minute))
	require.NoError(t, c.WindowAdd(ctx, key, 101.5, "b", time.Minute))
	require.NoError(t, c.WindowAdd(ctx, key, 102.5, "c", time.Minute))

	count, err := c.WindowCount(ctx, key, 100.5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	state, err = c.WindowCheck(ctx, key, 100.5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), state.Count)
	assert.True(t, state.HasOldest)
	assert.InDelta(t, 101.5, state.Oldest, 0.0001)

	ttl, err := c.client.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestCache_Keys(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	prefix := testKey(t, "scan") + ":"

	for _, suffix := range []string{"a", "b"} {
		require.NoError(t, c.Set(ctx, prefix+suffix, "1", time.Minute))
		defer c.Delete(ctx, prefix+suffix)
	}

	keys, err := c.Keys(ctx, prefix)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{prefix + "a", prefix + "b"}, keys)
}

func TestCache_CanceledContext(t *testing.T) {
	c := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := c.Get(ctx, "anything")
	assert.ErrorIs(t, err, context.Canceled)
}
