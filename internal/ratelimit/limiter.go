package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joshdurbin/guarded-shortener/internal/cache"
	"github.com/joshdurbin/guarded-shortener/internal/domain"
)

// Tier reasons reported when a window trips
const (
	ReasonBurst  = "burst"
	ReasonIP     = "ip_limit"
	ReasonGlobal = "global_limit"
)

// Limit is the number of events allowed per window
type Limit struct {
	Max    int64
	Window time.Duration
}

// ActionLimits groups the three tiers for one action
type ActionLimits struct {
	Burst    Limit
	Identity Limit
	Global   Limit
}

// Limits holds the fixed quotas for each action
var Limits = map[domain.Action]ActionLimits{
	domain.ActionCreate: {
		Burst:    Limit{Max: 5, Window: 10 * time.Second},
		Identity: Limit{Max: 10, Window: time.Hour},
		Global:   Limit{Max: 1000, Window: time.Minute},
	},
	domain.ActionClick: {
		Burst:    Limit{Max: 5, Window: 10 * time.Second},
		Identity: Limit{Max: 100, Window: time.Hour},
		Global:   Limit{Max: 50000, Window: time.Minute},
	},
}

// Decision is the outcome of a multi-tier check
type Decision struct {
	Limited    bool
	Reason     string
	Message    string
	RetryAfter time.Duration
}

type tier struct {
	key     string
	limit   Limit
	reason  string
	message string
}

// Limiter applies burst, per-identity and global windows in that order
type Limiter struct {
	window   *SlidingWindowLimiter
	now      func() time.Time
	failOpen bool
	timeout  time.Duration
}

// Option configures the limiter
type Option func(*Limiter)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithFailOpen treats store failures as "not limited" instead of returning an error
func WithFailOpen(failOpen bool) Option {
	return func(l *Limiter) {
		l.failOpen = failOpen
	}
}

// WithTimeout bounds each call into the store
func WithTimeout(d time.Duration) Option {
	return func(l *Limiter) {
		l.timeout = d
	}
}

// New creates a limiter backed by store
func New(store cache.Windows, opts ...Option) *Limiter {
	l := &Limiter{
		window:  NewSlidingWindowLimiter(store),
		now:     time.Now,
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) tiers(identity string, action domain.Action) []tier {
	limits := Limits[action]
	return []tier{
		{
			key:     fmt.Sprintf("ratelimit:burst:%s:%s", action, identity),
			limit:   limits.Burst,
			reason:  ReasonBurst,
			message: "Too many requests. Please slow down.",
		},
		{
			key:     fmt.Sprintf("ratelimit:ip:%s:%s", action, identity),
			limit:   limits.Identity,
			reason:  ReasonIP,
			message: fmt.Sprintf("Rate limit exceeded. Max %d %ss per hour.", limits.Identity.Max, action),
		},
		{
			key:     fmt.Sprintf("ratelimit:global:%s", action),
			limit:   limits.Global,
			reason:  ReasonGlobal,
			message: "Service is busy. Please try again shortly.",
		},
	}
}

func (l *Limiter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.timeout)
}

func (l *Limiter) storeFailure(op string, err error) error {
	if l.failOpen {
		log.Printf("[WARN] Rate limiter %s failed, allowing request: %v", op, err)
		return nil
	}
	return domain.Unavailable(fmt.Errorf("rate limiter %s: %w", op, err))
}

// IsRateLimited checks the tiers in order and stops at the first one that trips
func (l *Limiter) IsRateLimited(ctx context.Context, identity string, action domain.Action) (Decision, error) {
	if !action.Valid() {
		return Decision{}, domain.ErrInvalidAction
	}

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	now := l.now()
	for _, t := range l.tiers(identity, action) {
		result, err := l.window.Check(ctx, t.key, t.limit.Max, t.limit.Window, now)
		if err != nil {
			return Decision{}, l.storeFailure("check", err)
		}
		if result.Limited {
			return Decision{
				Limited:    true,
				Reason:     t.reason,
				Message:    t.message,
				RetryAfter: result.RetryAfter,
			}, nil
		}
	}
	return Decision{}, nil
}

// RecordRequest counts one accepted request against every tier
func (l *Limiter) RecordRequest(ctx context.Context, identity string, action domain.Action) error {
	if !action.Valid() {
		return domain.ErrInvalidAction
	}

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	now := l.now()
	for _, t := range l.tiers(identity, action) {
		if err := l.window.Record(ctx, t.key, t.limit.Window, now); err != nil {
			return l.storeFailure("record", err)
		}
	}
	return nil
}

// GetStatus reports burst and hourly usage for identity without modifying any window
func (l *Limiter) GetStatus(ctx context.Context, identity string, action domain.Action) (domain.RateLimitStatus, error) {
	if !action.Valid() {
		return domain.RateLimitStatus{}, domain.ErrInvalidAction
	}

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	now := l.now()
	tiers := l.tiers(identity, action)

	usage := func(t tier) (domain.WindowUsage, error) {
		used, err := l.window.Count(ctx, t.key, t.limit.Window, now)
		if err != nil {
			return domain.WindowUsage{}, domain.Unavailable(fmt.Errorf("rate limiter status: %w", err))
		}
		return domain.WindowUsage{
			Used:          used,
			Limit:         t.limit.Max,
			WindowSeconds: int64(t.limit.Window / time.Second),
		}, nil
	}

	burst, err := usage(tiers[0])
	if err != nil {
		return domain.RateLimitStatus{}, err
	}
	hourly, err := usage(tiers[1])
	if err != nil {
		return domain.RateLimitStatus{}, err
	}
	return domain.RateLimitStatus{Burst: burst, Hourly: hourly}, nil
}
