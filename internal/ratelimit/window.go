package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/joshdurbin/guarded-shortener/internal/cache"
)

// Result is the outcome of checking one sliding window
type Result struct {
	Limited    bool
	Count      int64
	Remaining  int64
	RetryAfter time.Duration
}

// SlidingWindowLimiter checks and records events in a trailing time window.
// Checking never records; callers record explicitly once a request is accepted.
type SlidingWindowLimiter struct {
	store     cache.Windows
	newMember func(now time.Time) string
}

// NewSlidingWindowLimiter creates a limiter over the given window store
func NewSlidingWindowLimiter(store cache.Windows) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		store: store,
		newMember: func(now time.Time) string {
			return fmt.Sprintf("%d-%s", now.UnixMicro(), uuid.NewString())
		},
	}
}

func toScore(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

// Check expires stale events and reports whether another event would exceed limit
func (l *SlidingWindowLimiter) Check(ctx context.Context, key string, limit int64, window time.Duration, now time.Time) (Result, error) {
	nowScore := toScore(now)
	state, err := l.store.WindowCheck(ctx, key, nowScore-window.Seconds())
	if err != nil {
		return Result{}, err
	}

	if state.Count < limit {
		return Result{
			Count:     state.Count,
			Remaining: limit - state.Count,
		}, nil
	}

	retryAfter := window
	if state.HasOldest {
		seconds := math.Ceil(state.Oldest + window.Seconds() - nowScore)
		if seconds < 1 {
			seconds = 1
		}
		retryAfter = time.Duration(seconds) * time.Second
	}
	return Result{
		Limited:    true,
		Count:      state.Count,
		RetryAfter: retryAfter,
	}, nil
}

// Record adds one event at now and keeps the window alive for window+1s
func (l *SlidingWindowLimiter) Record(ctx context.Context, key string, window time.Duration, now time.Time) error {
	return l.store.WindowAdd(ctx, key, toScore(now), l.newMember(now), window+time.Second)
}

// Count reports events inside the window without expiring anything
func (l *SlidingWindowLimiter) Count(ctx context.Context, key string, window time.Duration, now time.Time) (int64, error) {
	return l.store.WindowCount(ctx, key, toScore(now)-window.Seconds())
}
