// Package metrics exposes Prometheus collectors for the awwvision service.
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
	entriesTotal               *prometheus.CounterVec
	runsTotal                  *prometheus.CounterVec
	runDurationSeconds         prometheus.Histogram
	downloadBytesTotal         *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; every Observe helper calls it.
func Init() {
	once.Do(func() {
		entriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "awwvision_entries_total",
				Help: "Total number of feed entries processed, labeled by terminal outcome.",
			},
			[]string{"outcome"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "awwvision_runs_total",
				Help: "Total number of scrape runs, labeled by status.",
			},
			[]string{"status"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "awwvision_run_duration_seconds",
				Help:    "Histogram of completed scrape run durations.",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
		)

		downloadBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "awwvision_download_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
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
	Init()
	return promhttp.Handler()
}

// ObserveEntry counts one entry reaching outcome.
func ObserveEntry(outcome string) {
	Init()
	entriesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRun records a completed run.
func ObserveRun(duration time.Duration) {
	Init()
	runsTotal.WithLabelValues("completed").Inc()
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveRunAborted records a run that stopped because the feed could not be fetched.
func ObserveRunAborted() {
	Init()
	runsTotal.WithLabelValues("fetch_failed").Inc()
}

// ObserveDownload adds fetched bytes for the site serving rawURL.
func ObserveDownload(rawURL string, bytesFetched int) {
	Init()
	if bytesFetched <= 0 {
		return
	}
	downloadBytesTotal.WithLabelValues(SanitizeSite(rawURL)).Add(float64(bytesFetched))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
