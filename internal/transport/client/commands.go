package client

import (
	"context"
	"fmt"
	"time"

	"github.com/joshdurbin/guarded-shortener/internal/domain"
)

// Commands provides command-line operations for the client
type Commands struct {
	client *Client
}

// NewCommands creates a new Commands instance
func NewCommands(client *Client) *Commands {
	return &Commands{
		client: client,
	}
}

// Create creates a short URL and displays the result
func (c *Commands) Create(ctx context.Context, originalURL string) error {
	result, err := c.client.CreateURL(ctx, originalURL)
	if err != nil {
		return err
	}

	if result.Existing {
		fmt.Printf("Existing short URL returned:\n")
	} else {
		fmt.Printf("Short URL created:\n")
	}
	fmt.Printf("Short Code: %s\n", result.ShortCode)
	fmt.Printf("Short URL: %s\n", result.ShortURL)

	return nil
}

// Stats retrieves and displays statistics for a short URL
func (c *Commands) Stats(ctx context.Context, shortCode string) error {
	stats, err := c.client.GetStats(ctx, shortCode)
	if err != nil {
		if IsNotFound(err) {
			fmt.Printf("Short code '%s' not found\n", shortCode)
			return nil
		}
		return err
	}

	fmt.Printf("URL Statistics:\n")
	fmt.Printf("Short Code: %s\n", stats.ShortCode)
	fmt.Printf("Original URL: %s\n", stats.OriginalURL)
	fmt.Printf("Clicks: %d\n", stats.ClickCount)
	fmt.Printf("Created At: %s\n", stats.CreatedAt.Format(time.RFC3339))
	if stats.ExpiresAt != nil {
		fmt.Printf("Expires At: %s\n", stats.ExpiresAt.Format(time.RFC3339))
	} else {
		fmt.Printf("Expires At: Never\n")
	}

	return nil
}

// Status displays the caller's quota usage for an action
func (c *Commands) Status(ctx context.Context, action domain.Action) error {
	status, err := c.client.GetRateLimitStatus(ctx, action)
	if err != nil {
		return err
	}

	fmt.Printf("Rate limit status for '%s':\n", action)
	fmt.Printf("%-8s %6s %6s %8s\n", "Window", "Used", "Limit", "Seconds")
	fmt.Printf("%-8s %6d %6d %8d\n", "burst", status.Burst.Used, status.Burst.Limit, status.Burst.WindowSeconds)
	fmt.Printf("%-8s %6d %6d %8d\n", "hourly", status.Hourly.Used, status.Hourly.Limit, status.Hourly.WindowSeconds)

	return nil
}

// Token fetches and prints a form token
func (c *Commands) Token(ctx context.Context) error {
	token, err := c.client.FetchToken(ctx)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
