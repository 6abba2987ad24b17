package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ptgen",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ptgen",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	GeneratorRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ptgen",
		Name:      "generator_requests_total",
		Help:      "Total generator invocations by provider name and result status.",
	}, []string{"provider", "status"})

	GeneratorDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ptgen",
		Name:      "generator_duration_seconds",
		Help:      "Generator invocation duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"provider"})

	SearchRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ptgen",
		Name:      "search_requests_total",
		Help:      "Total search backend invocations by backend and result status.",
	}, []string{"backend", "status"})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ptgen",
		Name:      "cache_hits_total",
		Help:      "Total number of resource cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ptgen",
		Name:      "cache_misses_total",
		Help:      "Total number of resource cache misses.",
	})

	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ptgen",
		Name:      "rate_limited_requests_total",
		Help:      "Total number of requests rejected by the rate limiter.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		GeneratorRequestsTotal,
		GeneratorDuration,
		SearchRequestsTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		RateLimitedTotal,
	)
}
