package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/content-platform/rating-service/internal/domain"
	"github.com/content-platform/rating-service/internal/middleware"
	"github.com/content-platform/rating-service/internal/platform/logger"
	"github.com/content-platform/rating-service/internal/usecase"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler serves the rating service HTTP API.
type Handler struct {
	nodes   *usecase.NodeUsecase
	ratings *usecase.RatingUsecase
	logger  *logger.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(nodes *usecase.NodeUsecase, ratings *usecase.RatingUsecase, log *logger.Logger) *Handler {
	return &Handler{
		nodes:   nodes,
		ratings: ratings,
		logger:  log.Named("HTTPHandler"),
	}
}

// --- Request/response payloads ---

type createNodeRequest struct {
	Name    string `json:"name"`
	Ratable bool   `json:"ratable"`
}

type setRatableRequest struct {
	Ratable bool `json:"ratable"`
}

type submitRatingRequest struct {
	Score int32 `json:"score"`
}

type nodeResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	OwnerID       string    `json:"owner_id"`
	Ratable       bool      `json:"ratable"`
	AverageRating float64   `json:"average_rating"`
	TotalRating   int64     `json:"total_rating"`
	RatingCount   int64     `json:"rating_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ratingResponse struct {
	ID        string    `json:"id"`
	NodeID    string    `json:"node_id"`
	Score     int32     `json:"score"`
	RaterID   string    `json:"rater_id"`
	CreatedAt time.Time `json:"created_at"`
}

type listRatingsResponse struct {
	Ratings []ratingResponse `json:"ratings"`
	Total   int64            `json:"total"`
	Page    int32            `json:"page"`
	Limit   int32            `json:"limit"`
}

type statsResponse struct {
	NodeID        string  `json:"node_id"`
	AverageRating float64 `json:"average_rating"`
	TotalRating   int64   `json:"total_rating"`
	RatingCount   int64   `json:"rating_count"`
}

func toNodeResponse(n *domain.Node) nodeResponse {
	return nodeResponse{
		ID:            n.ID.Hex(),
		Name:          n.Name,
		OwnerID:       n.OwnerID,
		Ratable:       n.Ratable,
		AverageRating: n.Stats.AverageRating,
		TotalRating:   n.Stats.TotalRating,
		RatingCount:   n.Stats.RatingCount,
		CreatedAt:     n.CreatedAt,
		UpdatedAt:     n.UpdatedAt,
	}
}

func toRatingResponse(r *domain.Rating) ratingResponse {
	return ratingResponse{
		ID:        r.ID.Hex(),
		NodeID:    r.NodeID.Hex(),
		Score:     r.Score,
		RaterID:   r.RaterID,
		CreatedAt: r.CreatedAt,
	}
}

// --- Helpers ---

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handler) respondWithError(w http.ResponseWriter, err error, defaultMessage string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrRatingExists):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error(defaultMessage, zap.Error(err))
		http.Error(w, defaultMessage, http.StatusInternalServerError)
	}
}

func parseObjectIDParam(r *http.Request, key string) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(chi.URLParam(r, key))
}

func parseIntQueryParam(r *http.Request, key string, defaultValue int32) int32 {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultValue
	}
	valInt, err := strconv.ParseInt(valStr, 10, 32)
	if err != nil {
		return defaultValue
	}
	return int32(valInt)
}

// --- Node endpoints ---

// HandleCreateNode creates a new node owned by the authenticated user.
func (h *Handler) HandleCreateNode(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	userID, _ := middleware.UserFromContext(r.Context())
	if userID == "" {
		http.Error(w, "user authentication required", http.StatusUnauthorized)
		return
	}

	node, err := h.nodes.CreateNode(r.Context(), req.Name, userID, req.Ratable)
	if err != nil {
		h.respondWithError(w, err, "failed to create node")
		return
	}
	respondWithJSON(w, http.StatusCreated, toNodeResponse(node))
}

// HandleGetNode returns a node with its aggregate rating attributes.
func (h *Handler) HandleGetNode(w http.ResponseWriter, r *http.Request) {
	nodeID, err := parseObjectIDParam(r, "nodeID")
	if err != nil {
		http.Error(w, "invalid node ID format", http.StatusBadRequest)
		return
	}

	node, err := h.nodes.GetNode(r.Context(), nodeID)
	if err != nil {
		h.respondWithError(w, err, "failed to get node")
		return
	}
	respondWithJSON(w, http.StatusOK, toNodeResponse(node))
}

// HandleSetRatable toggles the rating capability on a node.
func (h *Handler) HandleSetRatable(w http.ResponseWriter, r *http.Request) {
	nodeID, err := parseObjectIDParam(r, "nodeID")
	if err != nil {
		http.Error(w, "invalid node ID format", http.StatusBadRequest)
		return
	}

	var req setRatableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	userID, role := middleware.UserFromContext(r.Context())
	node, err := h.nodes.SetRatable(r.Context(), nodeID, req.Ratable, userID, role)
	if err != nil {
		h.respondWithError(w, err, "failed to update ratable capability")
		return
	}
	respondWithJSON(w, http.StatusOK, toNodeResponse(node))
}

// --- Rating endpoints ---

// HandleSubmitRating creates a rating on a node for the authenticated user.
func (h *Handler) HandleSubmitRating(w http.ResponseWriter, r *http.Request) {
	nodeID, err := parseObjectIDParam(r, "nodeID")
	if err != nil {
		http.Error(w, "invalid node ID format", http.StatusBadRequest)
		return
	}

	var req submitRatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	userID, _ := middleware.UserFromContext(r.Context())
	if userID == "" {
		http.Error(w, "user authentication required", http.StatusUnauthorized)
		return
	}

	rating, err := h.ratings.SubmitRating(r.Context(), nodeID, userID, req.Score)
	if err != nil {
		h.respondWithError(w, err, "failed to submit rating")
		return
	}
	respondWithJSON(w, http.StatusCreated, toRatingResponse(rating))
}

// HandleRetractRating deletes a rating. Allowed for the original rater or
// an admin.
func (h *Handler) HandleRetractRating(w http.ResponseWriter, r *http.Request) {
	ratingID, err := parseObjectIDParam(r, "ratingID")
	if err != nil {
		http.Error(w, "invalid rating ID format", http.StatusBadRequest)
		return
	}

	userID, role := middleware.UserFromContext(r.Context())
	if err := h.ratings.RetractRating(r.Context(), ratingID, userID, role); err != nil {
		h.respondWithError(w, err, "failed to retract rating")
		return
	}
	respondWithJSON(w, http.StatusNoContent, nil)
}

// HandleListRatings returns a page of a node's rating records.
func (h *Handler) HandleListRatings(w http.ResponseWriter, r *http.Request) {
	nodeID, err := parseObjectIDParam(r, "nodeID")
	if err != nil {
		http.Error(w, "invalid node ID format", http.StatusBadRequest)
		return
	}

	page := parseIntQueryParam(r, "page", 1)
	limit := parseIntQueryParam(r, "limit", 10)

	ratings, total, err := h.ratings.ListRatings(r.Context(), nodeID, page, limit)
	if err != nil {
		h.respondWithError(w, err, "failed to list ratings")
		return
	}

	resp := listRatingsResponse{
		Ratings: make([]ratingResponse, len(ratings)),
		Total:   total,
		Page:    page,
		Limit:   limit,
	}
	for i, rating := range ratings {
		resp.Ratings[i] = toRatingResponse(rating)
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// HandleGetNodeStats returns the node's aggregate rating attributes.
func (h *Handler) HandleGetNodeStats(w http.ResponseWriter, r *http.Request) {
	nodeID, err := parseObjectIDParam(r, "nodeID")
	if err != nil {
		http.Error(w, "invalid node ID format", http.StatusBadRequest)
		return
	}

	stats, err := h.ratings.GetNodeStats(r.Context(), nodeID)
	if err != nil {
		h.respondWithError(w, err, "failed to get rating stats")
		return
	}
	respondWithJSON(w, http.StatusOK, statsResponse{
		NodeID:        nodeID.Hex(),
		AverageRating: stats.AverageRating,
		TotalRating:   stats.TotalRating,
		RatingCount:   stats.RatingCount,
	})
}

// HandleHealthz reports liveness.
func (h *Handler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
