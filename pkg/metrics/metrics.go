package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fan-out metrics
	FanoutEntriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_fanout_entries_total",
			Help: "Feed entries written by fan-out (attempted rows, duplicates included)",
		},
	)

	FanoutFollowers = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feed_fanout_followers",
			Help:    "Number of followers per fan-out",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	// Feed read metrics
	FeedRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_requests_total",
			Help: "Feed assembly requests by feed type",
		},
		[]string{"feed_type"},
	)

	FeedAssemblyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_assembly_duration_seconds",
			Help:    "Feed assembly latency by feed type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"feed_type"},
	)

	DegradedSourcesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_degraded_sources_total",
			Help: "Feed sources replaced with empty results after an upstream failure",
		},
		[]string{"source"},
	)

	// Interest model metrics
	InteractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_interactions_total",
			Help: "Recorded interactions by interaction type",
		},
		[]string{"interaction_type"},
	)

	// Job metrics
	JobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_job_runs_total",
			Help: "Periodic job runs by job and result",
		},
		[]string{"job", "result"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_job_duration_seconds",
			Help:    "Periodic job duration",
			Buckets: []float64{.05, .1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"job"},
	)

	// Upstream metrics
	UpstreamFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_upstream_failures_total",
			Help: "Content collaborator failures by operation",
		},
		[]string{"operation"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feed_circuit_breaker_state",
			Help: "Circuit breaker state (0 = closed, 1 = half-open, 2 = open)",
		},
		[]string{"name"},
	)

	// Event metrics
	EventsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_events_consumed_total",
			Help: "Post events consumed by type and result",
		},
		[]string{"type", "result"},
	)

	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_http_requests_total",
			Help: "HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

func init() {
	prometheus.MustRegister(
		FanoutEntriesTotal,
		FanoutFollowers,
		FeedRequestsTotal,
		FeedAssemblyDuration,
		DegradedSourcesTotal,
		InteractionsTotal,
		JobRunsTotal,
		JobDuration,
		UpstreamFailuresTotal,
		CircuitBreakerState,
		EventsConsumedTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration on the labelled histogram
func (t *Timer) ObserveDuration(h *prometheus.HistogramVec, labels ...string) time.Duration {
	d := time.Since(t.start)
	h.WithLabelValues(labels...).Observe(d.Seconds())
	return d
}
