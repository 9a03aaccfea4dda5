package botdetect

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joshdurbin/guarded-shortener/internal/cache"
)

// TokenField is the form field carrying the issued form token
const TokenField = "_token"

const tokenKeyPrefix = "formtoken:"

// HoneypotFields are hidden inputs a human never fills in
var HoneypotFields = []string{"website", "url_confirm", "email_address"}

var botSignatures = []string{
	"bot", "crawler", "spider", "scraper", "curl", "wget", "python-requests",
	"go-http-client", "java/", "libwww", "httpclient", "okhttp", "axios",
}

var automationSignatures = []string{
	"headless", "phantom", "selenium", "webdriver", "puppeteer", "playwright",
}

func tokenKey(token string) string {
	return tokenKeyPrefix + token
}

// HoneypotDetector flags any filled honeypot field
type HoneypotDetector struct{}

func (HoneypotDetector) Name() string { return "honeypot" }

func (HoneypotDetector) Detect(_ context.Context, sub Submission) ([]Signal, error) {
	var signals []Signal
	for _, field := range HoneypotFields {
		if sub.Field(field) != "" {
			signals = append(signals, Signal{
				Type:     "honeypot_filled",
				Severity: SeverityCritical,
				Detail:   field,
			})
		}
	}
	return signals, nil
}

// TimingDetector consumes the form token and checks how long the form was open.
// A token can only be consumed once.
type TimingDetector struct {
	store  cache.KV
	now    func() time.Time
	minAge time.Duration
	maxAge time.Duration
}

// NewTimingDetector creates a detector that reads tokens from store
func NewTimingDetector(store cache.KV, now func() time.Time) *TimingDetector {
	return &TimingDetector{
		store:  store,
		now:    now,
		minAge: 1500 * time.Millisecond,
		maxAge: time.Hour,
	}
}

func (d *TimingDetector) Name() string { return "timing" }

func (d *TimingDetector) Detect(ctx context.Context, sub Submission) ([]Signal, error) {
	token := sub.Field(TokenField)
	if token == "" {
		return nil, nil
	}

	value, found, err := d.store.GetDel(ctx, tokenKey(token))
	if err != nil {
		return nil, fmt.Errorf("failed to consume form token: %w", err)
	}
	if !found {
		return []Signal{{Type: "invalid_token", Severity: SeverityMedium}}, nil
	}

	issuedMs, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return []Signal{{Type: "invalid_token", Severity: SeverityMedium}}, nil
	}

	elapsed := d.now().Sub(time.UnixMilli(issuedMs))
	switch {
	case elapsed < d.minAge:
		return []Signal{{
			Type:     "too_fast",
			Severity: SeverityHigh,
			Detail:   fmt.Sprintf("%dms", elapsed.Milliseconds()),
		}}, nil
	case elapsed > d.maxAge:
		return []Signal{{Type: "token_expired", Severity: SeverityLow}}, nil
	}
	return nil, nil
}

// UserAgentDetector matches the user agent against known bot and automation
// signatures. At most one signal is raised, the first that matches.
type UserAgentDetector struct{}

func (UserAgentDetector) Name() string { return "user_agent" }

func (UserAgentDetector) Detect(_ context.Context, sub Submission) ([]Signal, error) {
	if sub.UserAgent == "" {
		return nil, nil
	}

	ua := strings.ToLower(sub.UserAgent)
	for _, sig := range botSignatures {
		if strings.Contains(ua, sig) {
			return []Signal{{Type: "known_bot", Severity: SeverityCritical, Detail: sig}}, nil
		}
	}
	for _, sig := range automationSignatures {
		if strings.Contains(ua, sig) {
			return []Signal{{Type: "automation_tool", Severity: SeverityCritical, Detail: sig}}, nil
		}
	}
	if len(sub.UserAgent) < 10 {
		return []Signal{{Type: "suspicious_ua", Severity: SeverityMedium}}, nil
	}
	return nil, nil
}

// HeaderDetector flags requests missing headers every browser sends
type HeaderDetector struct{}

func (HeaderDetector) Name() string { return "headers" }

func (HeaderDetector) Detect(_ context.Context, sub Submission) ([]Signal, error) {
	if sub.AcceptLanguage == "" || sub.Accept == "" {
		return []Signal{{Type: "missing_browser_headers", Severity: SeverityMedium}}, nil
	}
	return nil, nil
}
