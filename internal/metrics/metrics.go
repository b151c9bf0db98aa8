package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	MarkMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_mark_mutations_total",
		Help: "Mark writes and deletes by operation.",
	}, []string{"op"})

	MatrixRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_matrix_requests_total",
		Help: "Results matrix requests by cache outcome.",
	}, []string{"cache"})

	MatrixBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "portal_matrix_build_seconds",
		Help:    "Time to fetch and aggregate a results matrix.",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
	})
)

const (
	OpWrite  = "write"
	OpDelete = "delete"

	CacheHit  = "hit"
	CacheMiss = "miss"
)
