package domain

import (
	"time"
)

// Action identifies a rate-limited operation
type Action string

const (
	ActionCreate Action = "create"
	ActionClick  Action = "click"
)

// Valid reports whether the action is one the limiter knows about
func (a Action) Valid() bool {
	return a == ActionCreate || a == ActionClick
}

// ShortURL is the durable record of a shortened URL
type ShortURL struct {
	ID          int64      `json:"id"`
	ShortCode   string     `json:"short_code"`
	OriginalURL string     `json:"original_url"`
	URLHash     string     `json:"url_hash"`
	ClickCount  int64      `json:"click_count"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the record has passed its expiry at the given time
func (u *ShortURL) Expired(now time.Time) bool {
	return u.ExpiresAt != nil && !u.ExpiresAt.After(now)
}

// NewURL carries the fields needed to insert a record
type NewURL struct {
	ShortCode   string
	OriginalURL string
	URLHash     string
	CreatedAt   time.Time
	ExpiresAt   *time.Time
}

// ShortenResult is returned from a shorten operation
type ShortenResult struct {
	ShortCode string `json:"short_code"`
	Existing  bool   `json:"existing"`
}

// URLStats is the public view of a record with its live click total
type URLStats struct {
	ShortCode   string     `json:"short_code"`
	OriginalURL string     `json:"original_url"`
	ClickCount  int64      `json:"click_count"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// ClickMetadata describes the visitor behind a redirect
type ClickMetadata struct {
	IPHash    string
	UserAgent string
	Referer   string
}

// ClickEvent is a staged analytics entry
type ClickEvent struct {
	Time      time.Time `json:"time"`
	IPHash    string    `json:"ip_hash"`
	UserAgent string    `json:"user_agent"`
	Referer   string    `json:"referer"`
}

// CreateURLRequest represents the request to create a short URL
type CreateURLRequest struct {
	URL string `json:"url"`
}

// CreateURLResponse represents the response when creating a short URL
type CreateURLResponse struct {
	Success   bool   `json:"success"`
	ShortURL  string `json:"short_url"`
	ShortCode string `json:"short_code"`
	Existing  bool   `json:"existing"`
}

// StatsResponse wraps URLStats for the stats endpoint
type StatsResponse struct {
	Success bool      `json:"success"`
	Data    *URLStats `json:"data"`
}

// TokenResponse carries a freshly issued form token
type TokenResponse struct {
	Token string `json:"token"`
}

// ErrorResponse is the JSON body for failed requests
type ErrorResponse struct {
	Error      string `json:"error"`
	Reason     string `json:"reason,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// WindowUsage reports how much of a single window has been used
type WindowUsage struct {
	Used          int64 `json:"used"`
	Limit         int64 `json:"limit"`
	WindowSeconds int64 `json:"window_seconds"`
}

// RateLimitStatus is the introspection view of an identity's quotas
type RateLimitStatus struct {
	Burst  WindowUsage `json:"burst"`
	Hourly WindowUsage `json:"hourly"`
}
