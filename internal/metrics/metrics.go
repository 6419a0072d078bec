// Package metrics exposes Prometheus collectors for the puzzle proxy.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	upstreamAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "puzzle_upstream_attempts_total",
			Help: "Total number of upstream candidate attempts, labeled by candidate, host and outcome.",
		},
		[]string{"candidate", "host", "outcome"},
	)

	upstreamDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "puzzle_upstream_duration_seconds",
			Help:    "Histogram of upstream fetch latencies, labeled by candidate.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"candidate"},
	)

	upstreamBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "puzzle_upstream_bytes_total",
			Help: "Total number of bytes fetched from upstream, labeled by host.",
		},
		[]string{"host"},
	)

	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "puzzle_resolutions_total",
			Help: "Total number of puzzle resolutions, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	headlessPromotionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "puzzle_headless_promotions_total",
			Help: "Total number of headless promotions, labeled by candidate and result.",
		},
		[]string{"candidate", "result"},
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
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "route"},
	)
)

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

// ObserveAttempt records one candidate attempt.
func ObserveAttempt(candidate, rawURL, outcome string, bytesFetched int, duration time.Duration) {
	host := SanitizeSite(rawURL)
	upstreamAttemptsTotal.WithLabelValues(candidate, host, outcome).Inc()
	upstreamDurationSeconds.WithLabelValues(candidate).Observe(duration.Seconds())
	if bytesFetched > 0 {
		upstreamBytesTotal.WithLabelValues(host).Add(float64(bytesFetched))
	}
}

// ObserveResolution increments the resolution counter for the given outcome.
func ObserveResolution(outcome string) {
	resolutionsTotal.WithLabelValues(outcome).Inc()
}

// ObservePromotion records a headless promotion result.
func ObservePromotion(candidate string, ok bool) {
	result := "failed"
	if ok {
		result = "succeeded"
	}
	headlessPromotionsTotal.WithLabelValues(candidate, result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
