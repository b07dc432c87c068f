// Package metrics provides Prometheus instrumentation for the frame service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestLatency tracks HTTP request latency in seconds.
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"route", "status"},
	)

	// FramesUploadedTotal counts accepted uploads.
	FramesUploadedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "frames_uploaded_total",
			Help: "Total number of frames uploaded.",
		},
	)

	// FrameBytes is the size of the most recent frame.
	FrameBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "frame_bytes",
			Help: "Size in bytes of the most recently uploaded frame.",
		},
	)

	// StreamClients tracks connected live feed consumers.
	StreamClients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stream_clients",
			Help: "Number of connected live feed clients.",
		},
		[]string{"transport"}, // "multipart" or "websocket"
	)

	// AnalysisTotal counts analysis chain outcomes per tier.
	AnalysisTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_total",
			Help: "Analysis attempts by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	// BackoffWaitsTotal counts rate-limit waits per call site.
	BackoffWaitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoff_waits_total",
			Help: "Total number of backoff waits after a rate-limited call.",
		},
		[]string{"call"},
	)

	// ProviderRequestsTotal counts outbound provider calls.
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Outbound provider requests by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	// GenerationCacheLookupsTotal counts generated-text cache lookups.
	GenerationCacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_cache_lookups_total",
			Help: "Generated text cache lookups by result.",
		},
		[]string{"result"}, // "hit", "miss", "error"
	)

	// CircuitBreakerState tracks the current state of each circuit breaker.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state: 0=closed, 1=open, 2=half-open.",
		},
		[]string{"provider"},
	)
)
