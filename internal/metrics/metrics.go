// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scribble_http_requests_total",
			Help: "Total number of HTTP requests by route and status class",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scribble_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"method", "route"},
	)

	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scribble_http_requests_in_flight",
			Help: "Number of HTTP requests being served",
		},
	)

	CompletionCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scribble_completion_calls_total",
			Help: "Completion adapter calls by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	CompletionRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scribble_completion_retries_total",
			Help: "Extra attempts made by the retry-until-valid executor",
		},
		[]string{"kind"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scribble_cache_lookups_total",
			Help: "Workflow step cache lookups by step and result",
		},
		[]string{"step", "result"},
	)

	StoreConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scribble_record_conflicts_total",
			Help: "Optimistic concurrency conflicts observed by the record store",
		},
	)
)

func CacheHit(step string)  { CacheLookups.WithLabelValues(step, "hit").Inc() }
func CacheMiss(step string) { CacheLookups.WithLabelValues(step, "miss").Inc() }
