// Package metrics records abuse-control and shortener outcomes as Prometheus counters.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives outcome events from the request pipeline
type Recorder interface {
	RateLimited(action, reason string)
	BotVerdict(action string)
	UnsafeURL(reason string)
	Shortened(existing bool)
	Redirect(result string)
	StoreError(component string)
}

// Prometheus implements Recorder with registered counters
type Prometheus struct {
	rateLimited *prometheus.CounterVec
	botVerdicts *prometheus.CounterVec
	unsafeURLs  *prometheus.CounterVec
	shortened   *prometheus.CounterVec
	redirects   *prometheus.CounterVec
	storeErrors *prometheus.CounterVec
}

// NewPrometheus creates the counters and registers them with reg
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shortener",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"action", "reason"}),
		botVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shortener",
			Name:      "bot_verdicts_total",
			Help:      "Bot scoring verdicts by action.",
		}, []string{"action"}),
		unsafeURLs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shortener",
			Name:      "unsafe_urls_total",
			Help:      "URLs rejected by safety checks.",
		}, []string{"reason"}),
		shortened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shortener",
			Name:      "urls_shortened_total",
			Help:      "Successful shorten operations.",
		}, []string{"existing"}),
		redirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shortener",
			Name:      "redirects_total",
			Help:      "Redirect outcomes.",
		}, []string{"result"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shortener",
			Name:      "store_errors_total",
			Help:      "Backing store failures by component.",
		}, []string{"component"}),
	}

	for _, c := range []prometheus.Collector{p.rateLimited, p.botVerdicts, p.unsafeURLs, p.shortened, p.redirects, p.storeErrors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) RateLimited(action, reason string) {
	p.rateLimited.WithLabelValues(action, reason).Inc()
}

func (p *Prometheus) BotVerdict(action string) {
	p.botVerdicts.WithLabelValues(action).Inc()
}

func (p *Prometheus) UnsafeURL(reason string) {
	p.unsafeURLs.WithLabelValues(reason).Inc()
}

func (p *Prometheus) Shortened(existing bool) {
	p.shortened.WithLabelValues(strconv.FormatBool(existing)).Inc()
}

func (p *Prometheus) Redirect(result string) {
	p.redirects.WithLabelValues(result).Inc()
}

func (p *Prometheus) StoreError(component string) {
	p.storeErrors.WithLabelValues(component).Inc()
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Noop discards every event
type Noop struct{}

func (Noop) RateLimited(action, reason string) {}
func (Noop) BotVerdict(action string)          {}
func (Noop) UnsafeURL(reason string)           {}
func (Noop) Shortened(existing bool)           {}
func (Noop) Redirect(result string)            {}
func (Noop) StoreError(component string)       {}

var (
	_ Recorder = (*Prometheus)(nil)
	_ Recorder = Noop{}
)
