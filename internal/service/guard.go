package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/joshdurbin/guarded-shortener/internal/botdetect"
	"github.com/joshdurbin/guarded-shortener/internal/domain"
	"github.com/joshdurbin/guarded-shortener/internal/metrics"
	"github.com/joshdurbin/guarded-shortener/internal/ratelimit"
	"github.com/joshdurbin/guarded-shortener/internal/safety"
	"github.com/joshdurbin/guarded-shortener/internal/shortener"
)

// URLField is the form field holding the URL to shorten
const URLField = "url"

// Pinger is anything whose health can be checked
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck names a dependency checked by Ping
type HealthCheck struct {
	Name   string
	Pinger Pinger
}

// GuardDeps collects the components the guard composes
type GuardDeps struct {
	Limiter    *ratelimit.Limiter
	Scorer     *botdetect.Scorer
	Classifier *safety.Classifier
	Blocklist  *safety.Blocklist
	Shortener  URLShortener
	Metrics    metrics.Recorder
	Checks     []HealthCheck
	// FailOpen lets a create through when the blocklist cannot be read
	FailOpen bool
}

type guard struct {
	GuardDeps
}

// NewGuard creates the guarded pipeline
func NewGuard(deps GuardDeps) Guard {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop{}
	}
	if deps.Classifier == nil {
		deps.Classifier = safety.NewClassifier()
	}
	return &guard{GuardDeps: deps}
}

// HashIP returns the form in which client addresses are stored with analytics
func HashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}

func (g *guard) checkRate(ctx context.Context, clientIP string, action domain.Action) error {
	decision, err := g.Limiter.IsRateLimited(ctx, clientIP, action)
	if err != nil {
		g.Metrics.StoreError("ratelimit")
		return err
	}
	if decision.Limited {
		g.Metrics.RateLimited(string(action), decision.Reason)
		return domain.NewRateLimited(decision.Reason, decision.Message, decision.RetryAfter)
	}
	return nil
}

// CreateShortURL runs rate limit, bot score, validation, safety, blocklist and
// quota recording in that order, then shortens
func (g *guard) CreateShortURL(ctx context.Context, req CreateRequest) (*domain.ShortenResult, error) {
	if err := g.checkRate(ctx, req.ClientIP, domain.ActionCreate); err != nil {
		return nil, err
	}

	submission := botdetect.Submission{
		Fields:         req.Fields,
		UserAgent:      req.UserAgent,
		Accept:         req.Accept,
		AcceptLanguage: req.AcceptLanguage,
	}
	verdict, err := g.Scorer.ValidateSubmission(ctx, submission)
	if err != nil {
		g.Metrics.StoreError("botdetect")
		return nil, err
	}
	switch verdict.Action {
	case botdetect.ActionBlock:
		g.Metrics.BotVerdict(string(domain.ActionCreate))
		log.Printf("[WARN] Blocked bot submission from %s: score=%d signals=%v", req.ClientIP, verdict.Score, verdict.Signals)
		return nil, domain.ErrSuspiciousActivity
	case botdetect.ActionChallenge:
		log.Printf("[INFO] Allowing borderline submission from %s: score=%d signals=%v", req.ClientIP, verdict.Score, verdict.Signals)
	}

	rawURL := strings.TrimSpace(submission.Field(URLField))
	parsed, err := url.Parse(rawURL)
	if rawURL == "" || err != nil || parsed.Scheme == "" || parsed.Hostname() == "" {
		return nil, domain.ErrInvalidURL
	}

	report := g.Classifier.CheckURL(rawURL)
	if !report.Safe {
		g.Metrics.UnsafeURL(report.Reason)
		return nil, domain.NewUnsafeURL(report.Reason, report.Message)
	}

	if g.Blocklist != nil {
		blocked, err := g.Blocklist.IsBlocked(ctx, parsed.Hostname())
		switch {
		case err != nil && g.FailOpen:
			g.Metrics.StoreError("blocklist")
			log.Printf("[WARN] Blocklist unavailable, skipping: %v", err)
		case err != nil:
			g.Metrics.StoreError("blocklist")
			return nil, domain.Unavailable(err)
		case blocked:
			g.Metrics.UnsafeURL(safety.ReasonBlockedDomain)
			return nil, domain.NewUnsafeURL(safety.ReasonBlockedDomain, safety.Message(safety.ReasonBlockedDomain))
		}
	}

	if err := g.Limiter.RecordRequest(ctx, req.ClientIP, domain.ActionCreate); err != nil {
		g.Metrics.StoreError("ratelimit")
		return nil, err
	}

	result, err := g.Shortener.Shorten(ctx, rawURL)
	if err != nil {
		if domain.KindOf(err) == domain.KindUnavailable {
			g.Metrics.StoreError("repository")
		}
		return nil, err
	}
	g.Metrics.Shortened(result.Existing)
	return result, nil
}

// ResolveShortURL applies the click limit before resolving. Codes that could
// never have been issued are reported as not found.
func (g *guard) ResolveShortURL(ctx context.Context, shortCode string, visit Visit) (string, error) {
	if !shortener.ValidCode(shortCode) {
		g.Metrics.Redirect("not_found")
		return "", domain.ErrNotFound
	}

	if err := g.checkRate(ctx, visit.ClientIP, domain.ActionClick); err != nil {
		if domain.KindOf(err) == domain.KindRateLimited {
			g.Metrics.Redirect("rate_limited")
		}
		return "", err
	}

	target, err := g.Shortener.Resolve(ctx, shortCode, &domain.ClickMetadata{
		IPHash:    HashIP(visit.ClientIP),
		UserAgent: visit.UserAgent,
		Referer:   visit.Referer,
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			g.Metrics.Redirect("not_found")
		}
		return "", err
	}

	// The target is already resolved, so a failed record only loses quota accounting
	if err := g.Limiter.RecordRequest(ctx, visit.ClientIP, domain.ActionClick); err != nil {
		g.Metrics.StoreError("ratelimit")
		log.Printf("[WARN] Failed to record click quota for %s: %v", visit.ClientIP, err)
	}

	g.Metrics.Redirect("ok")
	return target, nil
}

// GetStats validates the code and returns its statistics
func (g *guard) GetStats(ctx context.Context, shortCode string) (*domain.URLStats, error) {
	if !shortener.ValidCode(shortCode) {
		return nil, domain.ErrInvalidShortCode
	}
	return g.Shortener.GetStats(ctx, shortCode)
}

// IssueFormToken issues a single-use token for the create form
func (g *guard) IssueFormToken(ctx context.Context) (string, error) {
	return g.Scorer.GenerateFormToken(ctx)
}

// RateLimitStatus reports quota usage for a client without consuming any
func (g *guard) RateLimitStatus(ctx context.Context, clientIP string, action domain.Action) (*domain.RateLimitStatus, error) {
	status, err := g.Limiter.GetStatus(ctx, clientIP, action)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// Ping checks every configured dependency
func (g *guard) Ping(ctx context.Context) error {
	for _, check := range g.Checks {
		if err := check.Pinger.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", check.Name, err)
		}
	}
	return nil
}

// Close releases the shortener
func (g *guard) Close() error {
	return g.Shortener.Close()
}

// Ensure guard implements Guard interface
var _ Guard = (*guard)(nil)
