package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	// requestsTotal counts lookups by cache and result (hit, miss)
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capacity_cache_requests_total",
		Help: "Cache lookups by cache and result",
	}, []string{"cache", "result"})

	// computesTotal counts computations by outcome (stored, uncached, error, cancelled, discarded)
	computesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capacity_cache_computes_total",
		Help: "Cache computations by cache and outcome",
	}, []string{"cache", "outcome"})

	// computeDuration tracks how long computations take
	computeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "capacity_cache_compute_duration_seconds",
		Help:    "Cache computation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	}, []string{"cache"})

	// invalidationsTotal counts removed entries by invalidation kind
	invalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capacity_cache_invalidations_total",
		Help: "Entries removed by invalidation kind (key, pattern, clear)",
	}, []string{"cache", "kind"})

	// warmUpTotal counts warm-up loads by result
	warmUpTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capacity_cache_warmup_total",
		Help: "Warm-up loads by cache and result",
	}, []string{"cache", "result"})
)
