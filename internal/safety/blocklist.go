package safety

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joshdurbin/guarded-shortener/internal/cache"
)

// DefaultBlockTTL is how long a dynamically blocked domain stays blocked
const DefaultBlockTTL = 24 * time.Hour

const blockedKeyPrefix = "blocked_domain:"

// Blocklist holds domains blocked at runtime, each with its own expiry
type Blocklist struct {
	store cache.KV
}

// NewBlocklist creates a blocklist backed by store
func NewBlocklist(store cache.KV) *Blocklist {
	return &Blocklist{store: store}
}

func blockedKey(domain string) string {
	return blockedKeyPrefix + strings.ToLower(strings.TrimSpace(domain))
}

// Block blocks domain and all of its subdomains for ttl, or DefaultBlockTTL when ttl is zero
func (b *Blocklist) Block(ctx context.Context, domain string, ttl time.Duration) error {
	if strings.TrimSpace(domain) == "" {
		return fmt.Errorf("domain must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultBlockTTL
	}
	if err := b.store.Set(ctx, blockedKey(domain), "1", ttl); err != nil {
		return fmt.Errorf("failed to block domain: %w", err)
	}
	return nil
}

// Unblock removes a domain from the blocklist
func (b *Blocklist) Unblock(ctx context.Context, domain string) error {
	if err := b.store.Delete(ctx, blockedKey(domain)); err != nil {
		return fmt.Errorf("failed to unblock domain: %w", err)
	}
	return nil
}

// IsBlocked reports whether host or any parent domain of host is blocked
func (b *Blocklist) IsBlocked(ctx context.Context, host string) (bool, error) {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for candidate := host; candidate != ""; {
		_, found, err := b.store.Get(ctx, blockedKey(candidate))
		if err != nil {
			return false, fmt.Errorf("failed to check blocklist: %w", err)
		}
		if found {
			return true, nil
		}

		dot := strings.IndexByte(candidate, '.')
		if dot < 0 {
			break
		}
		candidate = candidate[dot+1:]
		if !strings.Contains(candidate, ".") {
			// Never consult bare TLDs
			break
		}
	}
	return false, nil
}
