package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/content-platform/rating-service/internal/platform/metrics"
	"github.com/go-chi/chi/v5"
)

// Metrics returns middleware that records request counts and latency per
// chi route pattern.
func Metrics(mm *metrics.MetricsManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// The route pattern is only resolved after chi has matched, so
			// it is read post-handler to avoid high-cardinality raw paths.
			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}

			mm.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
			mm.HTTPRequestLatency.WithLabelValues(route).Observe(time.Since(startTime).Seconds())
		})
	}
}
