package safety

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/joshdurbin/guarded-shortener/internal/cache/memory"
	"github.com/joshdurbin/guarded-shortener/internal/cache/mocks"
)

func TestBlocklist_BlockCoversSubdomains(t *testing.T) {
	blocklist := NewBlocklist(memory.New())
	ctx := context.Background()

	require.NoError(t, blocklist.Block(ctx, "Evil.Example", 0))

	tests := []struct {
		host string
		want bool
	}{
		{host: "evil.example", want: true},
		{host: "EVIL.example", want: true},
		{host: "www.evil.example", want: true},
		{host: "a.b.evil.example", want: true},
		{host: "notevil.example", want: false},
		{host: "example", want: false},
		{host: "good.example", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			blocked, err := blocklist.IsBlocked(ctx, tt.host)
			require.NoError(t, err)
			assert.Equal(t, tt.want, blocked)
		})
	}
}

func TestBlocklist_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := memory.New(memory.WithClock(func() time.Time { return now }))
	blocklist := NewBlocklist(store)
	ctx := context.Background()

	require.NoError(t, blocklist.Block(ctx, "spam.example", time.Hour))

	blocked, err := blocklist.IsBlocked(ctx, "spam.example")
	require.NoError(t, err)
	assert.True(t, blocked)

	now = now.Add(time.Hour)
	blocked, err = blocklist.IsBlocked(ctx, "spam.example")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestBlocklist_DefaultTTL(t *testing.T) {
	store := &mocks.Store{}
	store.On("Set", mock.Anything, "blocked_domain:spam.example", "1", DefaultBlockTTL).Return(nil)

	require.NoError(t, NewBlocklist(store).Block(context.Background(), "spam.example", 0))
	store.AssertExpectations(t)
}

func TestBlocklist_Unblock(t *testing.T) {
	blocklist := NewBlocklist(memory.New())
	ctx := context.Background()

	require.NoError(t, blocklist.Block(ctx, "spam.example", time.Hour))
	require.NoError(t, blocklist.Unblock(ctx, "spam.example"))

	blocked, err := blocklist.IsBlocked(ctx, "spam.example")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestBlocklist_Errors(t *testing.T) {
	store := &mocks.Store{}
	store.On("Get", mock.Anything, "blocked_domain:spam.example").Return("", false, errors.New("down"))
	blocklist := NewBlocklist(store)

	_, err := blocklist.IsBlocked(context.Background(), "spam.example")
	assert.Error(t, err)

	assert.Error(t, blocklist.Block(context.Background(), "  ", time.Hour))
}
