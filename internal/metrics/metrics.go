// Package metrics exposes Prometheus collectors for the job crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchesTotal               *prometheus.CounterVec
	bytesTotal                 *prometheus.CounterVec
	rateLimitBackoffSeconds    *prometheus.HistogramVec
	politeDelaySeconds         *prometheus.HistogramVec
	rateLimitWaitSeconds       *prometheus.HistogramVec
	recordsTotal               *prometheus.CounterVec
	failuresTotal              *prometheus.CounterVec
	phaseDurationSeconds       *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobcrawler_fetch_attempts_total",
				Help: "HTTP attempts issued, labeled by profile and status code (0 = transport error).",
			},
			[]string{"profile", "code"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobcrawler_fetches_total",
				Help: "Page fetches after retries, labeled by profile and outcome.",
			},
			[]string{"profile", "outcome"},
		)

		bytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobcrawler_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		rateLimitBackoffSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobcrawler_rate_limit_backoff_seconds",
				Help:    "Backoff waits scheduled after HTTP 429 responses.",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
			},
			[]string{"profile"},
		)

		politeDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobcrawler_polite_delay_seconds",
				Help:    "Randomized delays applied before requests.",
				Buckets: []float64{0.25, 0.5, 1, 1.5, 2, 3, 4, 6},
			},
			[]string{"profile"},
		)

		rateLimitWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobcrawler_rate_limit_wait_seconds",
				Help:    "Time spent waiting on the per-host request rate cap.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"site"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobcrawler_records_total",
				Help: "Records produced, labeled by kind and quality tier.",
			},
			[]string{"kind", "quality"},
		)

		failuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobcrawler_failures_total",
				Help: "Failure log entries, labeled by phase.",
			},
			[]string{"phase"},
		)

		phaseDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobcrawler_phase_duration_seconds",
				Help:    "Wall time spent per crawl phase.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"phase"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAttempt counts one HTTP attempt and the bytes it returned.
func ObserveAttempt(profile, site string, code int, bytesFetched int) {
	Init()
	fetchAttemptsTotal.WithLabelValues(profile, strconv.Itoa(code)).Inc()
	if bytesFetched > 0 {
		bytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
	}
}

// ObserveFetch counts a finished page fetch.
func ObserveFetch(profile, outcome string) {
	Init()
	fetchesTotal.WithLabelValues(profile, outcome).Inc()
}

// ObserveRateLimitBackoff records the duration of a 429 backoff.
func ObserveRateLimitBackoff(profile string, wait time.Duration) {
	Init()
	rateLimitBackoffSeconds.WithLabelValues(profile).Observe(wait.Seconds())
}

// ObservePoliteDelay records a politeness delay.
func ObservePoliteDelay(profile string, wait time.Duration) {
	Init()
	politeDelaySeconds.WithLabelValues(profile).Observe(wait.Seconds())
}

// ObserveRateLimitWait records time spent blocked on the request rate cap.
func ObserveRateLimitWait(site string, wait time.Duration) {
	Init()
	rateLimitWaitSeconds.WithLabelValues(site).Observe(wait.Seconds())
}

// ObserveRecord counts a produced record.
func ObserveRecord(kind, quality string) {
	Init()
	recordsTotal.WithLabelValues(kind, quality).Inc()
}

// ObserveFailure counts a failure log entry.
func ObserveFailure(phase string) {
	Init()
	failuresTotal.WithLabelValues(phase).Inc()
}

// ObservePhase records how long a phase ran.
func ObservePhase(phase string, d time.Duration) {
	Init()
	phaseDurationSeconds.WithLabelValues(phase).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
