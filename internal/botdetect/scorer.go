package botdetect

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/joshdurbin/guarded-shortener/internal/cache"
	"github.com/joshdurbin/guarded-shortener/internal/domain"
)

// Action is what the caller should do with a submission
type Action string

const (
	ActionAllow     Action = "allow"
	ActionChallenge Action = "challenge"
	ActionBlock     Action = "block"
)

const (
	maxScore       = 100
	blockScore     = 70
	challengeScore = 40

	// TokenTTL outlives the maximum form age so stale tokens still read as expired
	TokenTTL = time.Hour + time.Minute
)

// Verdict is the scored outcome of a submission
type Verdict struct {
	IsBot   bool     `json:"is_bot"`
	Score   int      `json:"score"`
	Signals []Signal `json:"signals"`
	Action  Action   `json:"action"`
}

// Scorer runs every detector over a submission and sums the weighted signals
type Scorer struct {
	store     cache.KV
	detectors []Detector
	now       func() time.Time
	failOpen  bool
}

// Option configures the scorer
type Option func(*Scorer)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		s.now = now
	}
}

// WithFailOpen skips detectors whose backing store fails instead of returning an error
func WithFailOpen(failOpen bool) Option {
	return func(s *Scorer) {
		s.failOpen = failOpen
	}
}

// WithDetectors replaces the default detector set
func WithDetectors(detectors ...Detector) Option {
	return func(s *Scorer) {
		s.detectors = detectors
	}
}

// NewScorer creates a scorer with the honeypot, timing, user agent and header detectors
func NewScorer(store cache.KV, opts ...Option) *Scorer {
	s := &Scorer{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.detectors == nil {
		s.detectors = []Detector{
			HoneypotDetector{},
			NewTimingDetector(store, s.now),
			UserAgentDetector{},
			HeaderDetector{},
		}
	}
	return s
}

// GenerateFormToken issues a single-use token recording when the form was served
func (s *Scorer) GenerateFormToken(ctx context.Context) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate form token: %w", err)
	}
	token := hex.EncodeToString(buf)

	issued := strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.store.Set(ctx, tokenKey(token), issued, TokenTTL); err != nil {
		return "", domain.Unavailable(fmt.Errorf("failed to store form token: %w", err))
	}
	return token, nil
}

// ValidateSubmission scores a submission and decides whether to allow, challenge or block it
func (s *Scorer) ValidateSubmission(ctx context.Context, sub Submission) (Verdict, error) {
	signals := []Signal{}
	for _, d := range s.detectors {
		found, err := d.Detect(ctx, sub)
		if err != nil {
			if s.failOpen {
				log.Printf("[WARN] Bot detector %s failed, skipping: %v", d.Name(), err)
				continue
			}
			return Verdict{}, domain.Unavailable(fmt.Errorf("bot detector %s: %w", d.Name(), err))
		}
		signals = append(signals, found...)
	}

	score := 0
	for _, sig := range signals {
		score += sig.Severity.Weight()
	}
	if score > maxScore {
		score = maxScore
	}

	verdict := Verdict{Score: score, Signals: signals, Action: ActionAllow}
	switch {
	case score >= blockScore:
		verdict.IsBot = true
		verdict.Action = ActionBlock
	case score >= challengeScore:
		verdict.Action = ActionChallenge
	}
	return verdict, nil
}
