package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joshdurbin/guarded-shortener/internal/domain"
)

// UserAgent identifies the CLI to the server's bot checks
const UserAgent = "guarded-shortener-cli/1.0 (command line)"

// APIError is a non-success response from the server
type APIError struct {
	StatusCode int
	Message    string
	Reason     string
	RetryAfter int
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "server returned status %d", e.StatusCode)
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	if e.RetryAfter > 0 {
		fmt.Fprintf(&b, ", retry after %ds", e.RetryAfter)
	}
	return b.String()
}

// IsNotFound reports whether err is a 404 from the server
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// Client represents an HTTP client for the shortener API
type Client struct {
	serverURL  string
	httpClient *http.Client
}

// NewClient creates a new shortener client
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends req and decodes a response with one of the accepted statuses into out
func (c *Client) do(req *http.Request, out interface{}, accepted ...int) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	for _, status := range accepted {
		if resp.StatusCode == status {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			return nil
		}
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body domain.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Message = body.Error
		apiErr.Reason = body.Reason
		apiErr.RetryAfter = body.RetryAfter
	}
	return apiErr
}

// CreateURL creates a short URL
func (c *Client) CreateURL(ctx context.Context, originalURL string) (*domain.CreateURLResponse, error) {
	jsonData, err := json.Marshal(domain.CreateURLRequest{URL: originalURL})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/shorten", jsonData)
	if err != nil {
		return nil, err
	}

	var result domain.CreateURLResponse
	if err := c.do(req, &result, http.StatusCreated, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetStats retrieves statistics for a short code
func (c *Client) GetStats(ctx context.Context, shortCode string) (*domain.URLStats, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/stats?code="+url.QueryEscape(shortCode), nil)
	if err != nil {
		return nil, err
	}

	var result domain.StatsResponse
	if err := c.do(req, &result, http.StatusOK); err != nil {
		return nil, err
	}
	if result.Data == nil {
		return nil, fmt.Errorf("server returned no data for '%s'", shortCode)
	}
	return result.Data, nil
}

// GetRateLimitStatus retrieves the caller's quota usage for an action
func (c *Client) GetRateLimitStatus(ctx context.Context, action domain.Action) (*domain.RateLimitStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/ratelimit?action="+url.QueryEscape(string(action)), nil)
	if err != nil {
		return nil, err
	}

	var status domain.RateLimitStatus
	if err := c.do(req, &status, http.StatusOK); err != nil {
		return nil, err
	}
	return &status, nil
}

// FetchToken requests a form token
func (c *Client) FetchToken(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/token", nil)
	if err != nil {
		return "", err
	}

	var result domain.TokenResponse
	if err := c.do(req, &result, http.StatusOK); err != nil {
		return "", err
	}
	return result.Token, nil
}
