package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	require.NoError(t, err)

	p.RateLimited("create", "burst")
	p.RateLimited("create", "burst")
	p.RateLimited("click", "global_limit")
	p.BotVerdict("block")
	p.UnsafeURL("shortener_chain")
	p.Shortened(true)
	p.Shortened(false)
	p.Shortened(false)
	p.Redirect("found")
	p.StoreError("ratelimit")

	assert.Equal(t, 2.0, testutil.ToFloat64(p.rateLimited.WithLabelValues("create", "burst")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.rateLimited.WithLabelValues("click", "global_limit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.botVerdicts.WithLabelValues("block")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.unsafeURLs.WithLabelValues("shortener_chain")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.shortened.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.redirects.WithLabelValues("found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.storeErrors.WithLabelValues("ratelimit")))
}

func TestPrometheus_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheus(reg)
	require.NoError(t, err)

	_, err = NewPrometheus(reg)
	assert.Error(t, err)
}

func TestHandler_ExposesCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	require.NoError(t, err)
	p.UnsafeURL("blocked_tld")

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `shortener_unsafe_urls_total{reason="blocked_tld"} 1`)
}
