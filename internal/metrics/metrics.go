package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "discovery",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	CatalogRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "catalog_requests_total",
		Help:      "Total requests to stock catalogs by catalog name and result status.",
	}, []string{"catalog", "status"})

	CatalogRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "discovery",
		Name:      "catalog_request_duration_seconds",
		Help:      "Stock catalog request duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"catalog"})

	CatalogAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "discovery",
		Name:      "catalog_available",
		Help:      "Whether a catalog is available (1) or blocked by circuit breaker (0).",
	}, []string{"catalog"})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "cache_hits_total",
		Help:      "Total number of search cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "cache_misses_total",
		Help:      "Total number of search cache misses.",
	})

	PlannerRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "planner_requests_total",
		Help:      "Total query planner invocations by plan source and status.",
	}, []string{"source", "status"})

	VisionRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "vision_requests_total",
		Help:      "Total vision classifier invocations by result status.",
	}, []string{"status"})

	MetadataFetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "metadata_fetches_total",
		Help:      "Total metadata enrichment fetches by kind (thumbnail, detail, screenshot) and status.",
	}, []string{"kind", "status"})

	FastTracksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "fast_tracks_total",
		Help:      "Discovery runs short-circuited by a strong thumbnail verdict.",
	})

	RotationRepeatsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "rotation_repeats_total",
		Help:      "Times the anti-repeat window had to allow a windowed clip again.",
	})

	AcquisitionTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "acquisition_state_transitions_total",
		Help:      "Total acquisition state machine transitions.",
	}, []string{"from", "to"})

	AcquisitionWaitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "discovery",
		Name:      "acquisition_wait_duration_seconds",
		Help:      "Time spent waiting for deferred assets to become ready.",
		Buckets:   []float64{5, 10, 30, 60, 120, 180, 240, 300},
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		CatalogRequestsTotal,
		CatalogRequestDuration,
		CatalogAvailable,
		CacheHitsTotal,
		CacheMissesTotal,
		PlannerRequestsTotal,
		VisionRequestsTotal,
		MetadataFetchesTotal,
		FastTracksTotal,
		RotationRepeatsTotal,
		AcquisitionTransitionsTotal,
		AcquisitionWaitDuration,
	)
}
