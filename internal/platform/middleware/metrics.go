package middleware

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// numericSegment collapses ids in paths so label cardinality stays bounded.
var numericSegment = regexp.MustCompile(`/[0-9]+(/|$)`)

func normalizePath(path string) string {
	// Applied twice so adjacent ids ("/1/2") both collapse.
	path = numericSegment.ReplaceAllString(path, "/{id}$1")
	return numericSegment.ReplaceAllString(path, "/{id}$1")
}

// Metrics holds the HTTP and rate limit collectors. A nil *Metrics is a no-op.
type Metrics struct {
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	rateLimitChecks *prometheus.CounterVec
	rateLimitErrors prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "path"}),
		rateLimitChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_checks_total",
			Help: "Rate limit decisions by outcome.",
		}, []string{"outcome"}),
		rateLimitErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rate_limit_store_errors_total",
			Help: "Rate limit store failures (requests allowed through).",
		}),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.requests, m.duration, m.rateLimitChecks, m.rateLimitErrors} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Instrument records request count and latency.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		path := normalizePath(r.URL.Path)
		m.requests.WithLabelValues(r.Method, path, strconv.Itoa(rw.status)).Inc()
		m.duration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) incRateLimitChecks(allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "blocked"
	}
	m.rateLimitChecks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) incRateLimitErrors() {
	if m == nil {
		return
	}
	m.rateLimitErrors.Inc()
}
