package metrics

import (
	"net/http"

	"github.com/content-platform/rating-service/internal/platform/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsManager holds custom Prometheus metrics.
type MetricsManager struct {
	Registry               *prometheus.Registry
	RatingsSubmittedTotal  prometheus.Counter
	RatingsRetractedTotal  prometheus.Counter
	StatsRecomputesTotal   prometheus.Counter
	RecomputeNoopsTotal    prometheus.Counter
	StatsCacheHitsTotal    prometheus.Counter
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestLatency     *prometheus.HistogramVec
}

// NewMetricsManager initializes and registers custom Prometheus metrics on
// a dedicated registry.
func NewMetricsManager(serviceName string) *MetricsManager {
	registry := prometheus.NewRegistry()

	ratingsSubmittedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "ratings_submitted_total",
		Help:      "Total number of rating records created.",
	})
	ratingsRetractedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "ratings_retracted_total",
		Help:      "Total number of rating records deleted.",
	})
	statsRecomputesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "stats_recomputes_total",
		Help:      "Total number of aggregate rating recomputations written.",
	})
	recomputeNoopsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "recompute_noops_total",
		Help:      "Recompute invocations skipped because the node was missing or not ratable.",
	})
	statsCacheHitsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "stats_cache_hits_total",
		Help:      "Rating stats reads served from the cache.",
	})
	httpRequestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by route and status code.",
	}, []string{"route", "status"})
	httpRequestLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: serviceName,
		Name:      "http_request_latency_seconds",
		Help:      "Latency of HTTP requests by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	registry.MustRegister(
		ratingsSubmittedTotal,
		ratingsRetractedTotal,
		statsRecomputesTotal,
		recomputeNoopsTotal,
		statsCacheHitsTotal,
		httpRequestsTotal,
		httpRequestLatency,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return &MetricsManager{
		Registry:              registry,
		RatingsSubmittedTotal: ratingsSubmittedTotal,
		RatingsRetractedTotal: ratingsRetractedTotal,
		StatsRecomputesTotal:  statsRecomputesTotal,
		RecomputeNoopsTotal:   recomputeNoopsTotal,
		StatsCacheHitsTotal:   statsCacheHitsTotal,
		HTTPRequestsTotal:     httpRequestsTotal,
		HTTPRequestLatency:    httpRequestLatency,
	}
}

// StartMetricsServer starts an HTTP server exposing the registry at
// /metrics. It blocks, so callers run it in a goroutine.
func StartMetricsServer(port string, appLogger *logger.Logger, registry *prometheus.Registry) error {
	if port == "" {
		appLogger.Info("Prometheus metrics server port not configured, server will not start.")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	appLogger.Info("Prometheus metrics server starting", zap.String("port", port), zap.String("path", "/metrics"))

	server := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}
	return server.ListenAndServe()
}
