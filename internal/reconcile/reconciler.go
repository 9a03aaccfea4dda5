package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joshdurbin/guarded-shortener/internal/cache"
	"github.com/joshdurbin/guarded-shortener/internal/domain"
	"github.com/joshdurbin/guarded-shortener/internal/repository"
)

// Result summarises one reconciliation pass
type Result struct {
	Codes  int
	Clicks int64
	Events int
	Failed int
}

// Reconciler folds staged click counters and analytics from the transient
// store into the durable repository
type Reconciler struct {
	store   cache.Store
	repo    repository.URLRepository
	timeout time.Duration

	mutex    sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a reconciler
func New(store cache.Store, repo repository.URLRepository) *Reconciler {
	return &Reconciler{
		store:    store,
		repo:     repo,
		timeout:  time.Minute,
		stopChan: make(chan struct{}),
	}
}

// stagedCodes lists every code that has a pending counter or analytics list
func (r *Reconciler) stagedCodes(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, prefix := range []string{cache.ClicksPrefix, cache.AnalyticsPrefix} {
		keys, err := r.store.Keys(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s keys: %w", strings.TrimSuffix(prefix, ":"), err)
		}
		for _, key := range keys {
			seen[strings.TrimPrefix(key, prefix)] = struct{}{}
		}
	}

	codes := make([]string, 0, len(seen))
	for code := range seen {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

// RunOnce moves everything currently staged into the repository. A code that
// fails is restored to the transient store and retried on the next pass.
func (r *Reconciler) RunOnce(ctx context.Context) (Result, error) {
	var result Result

	codes, err := r.stagedCodes(ctx)
	if err != nil {
		return result, err
	}

	for _, code := range codes {
		clicks, err := r.flushClicks(ctx, code)
		if err != nil {
			log.Printf("[ERROR] Failed to reconcile clicks for %s: %v", code, err)
			result.Failed++
			continue
		}
		events, err := r.flushAnalytics(ctx, code)
		if err != nil {
			log.Printf("[ERROR] Failed to reconcile analytics for %s: %v", code, err)
			result.Failed++
			continue
		}
		result.Codes++
		result.Clicks += clicks
		result.Events += events
	}
	return result, nil
}

func (r *Reconciler) flushClicks(ctx context.Context, code string) (int64, error) {
	key := cache.ClicksKey(code)
	delta, err := r.store.TakeInt(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to take counter: %w", err)
	}
	if delta == 0 {
		return 0, nil
	}

	err = r.repo.AddClicks(ctx, code, delta)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		log.Printf("[WARN] Dropping %d clicks for unknown code %s", delta, code)
		return 0, nil
	case err != nil:
		if _, restoreErr := r.store.IncrBy(ctx, key, delta); restoreErr != nil {
			log.Printf("[ERROR] Lost %d clicks for %s: %v", delta, code, restoreErr)
		}
		return 0, fmt.Errorf("failed to add clicks: %w", err)
	}
	return delta, nil
}

func (r *Reconciler) flushAnalytics(ctx context.Context, code string) (int, error) {
	key := cache.AnalyticsKey(code)
	raw, err := r.store.Drain(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to drain analytics: %w", err)
	}
	if len(raw) == 0 {
		return 0, nil
	}

	events := make([]domain.ClickEvent, 0, len(raw))
	for _, entry := range raw {
		var event domain.ClickEvent
		if err := json.Unmarshal([]byte(entry), &event); err != nil {
			log.Printf("[WARN] Skipping malformed analytics entry for %s: %v", code, err)
			continue
		}
		events = append(events, event)
	}

	record, err := r.repo.GetByCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		log.Printf("[WARN] Dropping %d analytics entries for unknown code %s", len(events), code)
		return 0, nil
	}
	if err == nil {
		err = r.repo.InsertAnalytics(ctx, record.ID, events)
	}
	if err != nil {
		r.restore(ctx, key, raw)
		return 0, fmt.Errorf("failed to insert analytics: %w", err)
	}
	return len(events), nil
}

func (r *Reconciler) restore(ctx context.Context, key string, entries []string) {
	for _, entry := range entries {
		if err := r.store.Append(ctx, key, entry, cache.MaxAnalyticsEntries); err != nil {
			log.Printf("[ERROR] Failed to restore analytics to %s: %v", key, err)
			return
		}
	}
}

// Start runs RunOnce every interval until Stop is called
func (r *Reconciler) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got: %v", interval)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.running {
		return fmt.Errorf("reconciler already running")
	}
	r.running = true
	r.done = make(chan struct{})

	go r.loop(interval, r.stopChan, r.done)
	return nil
}

func (r *Reconciler) loop(interval time.Duration, stopChan <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runLogged()
		case <-stopChan:
			// Final pass before stopping
			r.runLogged()
			return
		}
	}
}

func (r *Reconciler) runLogged() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	result, err := r.RunOnce(ctx)
	if err != nil {
		log.Printf("[ERROR] Reconciliation failed: %v", err)
		return
	}
	if result.Codes > 0 || result.Failed > 0 {
		log.Printf("[INFO] Reconciled %d codes: %d clicks, %d events, %d failed",
			result.Codes, result.Clicks, result.Events, result.Failed)
	}
}

// Stop halts the background loop after one final pass
func (r *Reconciler) Stop() error {
	r.mutex.Lock()
	if !r.running {
		r.mutex.Unlock()
		return nil
	}
	r.running = false
	close(r.stopChan)
	done := r.done
	// Create new channel for potential restart
	r.stopChan = make(chan struct{})
	r.mutex.Unlock()

	<-done
	return nil
}
