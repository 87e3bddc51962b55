package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "placesearch",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "placesearch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "placesearch",
		Name:      "provider_requests_total",
		Help:      "Total requests to the places provider by operation and result status.",
	}, []string{"operation", "status"})

	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "placesearch",
		Name:      "provider_request_duration_seconds",
		Help:      "Places provider request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"operation"})

	ProviderAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "placesearch",
		Name:      "provider_available",
		Help:      "Whether a provider operation is available (1) or blocked by circuit breaker (0).",
	}, []string{"operation"})

	ResultCacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "placesearch",
		Name:      "result_cache_hits_total",
		Help:      "Total number of place detail cache hits by layer.",
	}, []string{"layer"})

	ResultCacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "placesearch",
		Name:      "result_cache_misses_total",
		Help:      "Total number of place detail cache misses by layer.",
	}, []string{"layer"})

	StaleDistanceWritesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "placesearch",
		Name:      "stale_distance_writes_total",
		Help:      "Distance results and commits dropped because a newer origin superseded them.",
	})

	SearchSnapshotsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "placesearch",
		Name:      "search_snapshots_total",
		Help:      "Total search snapshots published by stage.",
	}, []string{"stage"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		ProviderAvailable,
		ResultCacheHitsTotal,
		ResultCacheMissesTotal,
		StaleDistanceWritesTotal,
		SearchSnapshotsTotal,
	)
}
