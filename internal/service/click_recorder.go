package service

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/joshdurbin/guarded-shortener/internal/cache"
	"github.com/joshdurbin/guarded-shortener/internal/domain"
)

const maxHeaderRunes = 500

type clickJob struct {
	code string
	meta *domain.ClickMetadata
	at   time.Time
}

// clickRecorder stages clicks in the transient store off the request path.
// When the queue is full the click is written inline instead of dropped.
type clickRecorder struct {
	store   cache.Store
	jobs    chan clickJob
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	timeout time.Duration
}

func newClickRecorder(store cache.Store, queueSize int) *clickRecorder {
	r := &clickRecorder{
		store:   store,
		stopCh:  make(chan struct{}),
		timeout: 5 * time.Second,
	}
	if queueSize > 0 {
		r.jobs = make(chan clickJob, queueSize)
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

func (r *clickRecorder) record(code string, meta *domain.ClickMetadata, at time.Time) {
	job := clickJob{code: code, meta: meta, at: at}

	r.mu.RLock()
	if r.jobs != nil && !r.closed {
		select {
		case r.jobs <- job:
			r.mu.RUnlock()
			return
		default:
		}
	}
	r.mu.RUnlock()

	r.write(job)
}

func (r *clickRecorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case job := <-r.jobs:
			r.write(job)
		case <-r.stopCh:
			for {
				select {
				case job := <-r.jobs:
					r.write(job)
				default:
					return
				}
			}
		}
	}
}

func (r *clickRecorder) write(job clickJob) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if _, err := r.store.IncrBy(ctx, cache.ClicksKey(job.code), 1); err != nil {
		log.Printf("[ERROR] Failed to count click for %s: %v", job.code, err)
	}

	if job.meta == nil {
		return
	}
	payload, err := json.Marshal(domain.ClickEvent{
		Time:      job.at.UTC(),
		IPHash:    job.meta.IPHash,
		UserAgent: truncateRunes(job.meta.UserAgent, maxHeaderRunes),
		Referer:   truncateRunes(job.meta.Referer, maxHeaderRunes),
	})
	if err != nil {
		log.Printf("[ERROR] Failed to encode click for %s: %v", job.code, err)
		return
	}
	if err := r.store.Append(ctx, cache.AnalyticsKey(job.code), string(payload), cache.MaxAnalyticsEntries); err != nil {
		log.Printf("[ERROR] Failed to stage analytics for %s: %v", job.code, err)
	}
}

// close stops accepting queued work and waits for the queue to drain
func (r *clickRecorder) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.stopCh)
	r.mu.Unlock()

	r.wg.Wait()
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
