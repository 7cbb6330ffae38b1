package http

import (
	"github.com/content-platform/rating-service/internal/middleware"
	"github.com/content-platform/rating-service/internal/platform/logger"
	"github.com/content-platform/rating-service/internal/platform/metrics"
	"github.com/go-chi/chi/v5"
)

// NewRouter wires the HTTP API routes and middleware.
func NewRouter(h *Handler, jwtSecret string, mm *metrics.MetricsManager, log *logger.Logger) *chi.Mux {
	mux := chi.NewRouter()

	mux.Use(middleware.Tracing())
	mux.Use(middleware.RequestLogger(log))
	if mm != nil {
		mux.Use(middleware.Metrics(mm))
	}

	mux.Get("/healthz", h.HandleHealthz)

	// Public read endpoints.
	mux.Get("/api/nodes/{nodeID}", h.HandleGetNode)
	mux.Get("/api/nodes/{nodeID}/ratings", h.HandleListRatings)
	mux.Get("/api/nodes/{nodeID}/rating", h.HandleGetNodeStats)

	// Authenticated endpoints.
	mux.Group(func(r chi.Router) {
		r.Use(middleware.JWTAuth(jwtSecret, log))

		r.Post("/api/nodes", h.HandleCreateNode)
		r.Put("/api/nodes/{nodeID}/ratable", h.HandleSetRatable)
		r.Post("/api/nodes/{nodeID}/ratings", h.HandleSubmitRating)
		r.Delete("/api/ratings/{ratingID}", h.HandleRetractRating)
	})

	return mux
}
