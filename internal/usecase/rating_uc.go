package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/content-platform/rating-service/internal/domain"
	"github.com/content-platform/rating-service/internal/platform/logger"
	"github.com/content-platform/rating-service/internal/platform/metrics"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// EventPublisher publishes rating lifecycle events for external consumers
// (and, in the nats binding mode, for the service's own subscriber).
type EventPublisher interface {
	PublishRatingCreated(ctx context.Context, rating *domain.Rating) error
	PublishRatingDeleted(ctx context.Context, ref domain.RatingRef, raterID string) error
}

// AdminRole is the role allowed to retract other users' ratings and to
// toggle the rating capability on nodes it does not own.
const AdminRole = "admin"

// RatingUsecase implements the rating submission and retraction workflow.
// The behavior is invoked synchronously after each mutation; a nil
// behavior means notification is delegated entirely to the published
// events (nats binding mode).
type RatingUsecase struct {
	nodes    domain.NodeRepository
	ratings  domain.RatingRepository
	behavior domain.RatingBehavior // optional, may be nil
	cache    domain.StatsCache     // optional, may be nil
	pub      EventPublisher
	metrics  *metrics.MetricsManager
	logger   *logger.Logger
}

// NewRatingUsecase creates a new RatingUsecase.
func NewRatingUsecase(
	nodes domain.NodeRepository,
	ratings domain.RatingRepository,
	behavior domain.RatingBehavior,
	cache domain.StatsCache,
	pub EventPublisher,
	mm *metrics.MetricsManager,
	log *logger.Logger,
) *RatingUsecase {
	return &RatingUsecase{
		nodes:    nodes,
		ratings:  ratings,
		behavior: behavior,
		cache:    cache,
		pub:      pub,
		metrics:  mm,
		logger:   log.Named("RatingUsecase"),
	}
}

// SubmitRating creates a rating record for a node and notifies the bound
// behavior. The node must exist and carry the rating capability; each
// rater may rate a node once.
func (uc *RatingUsecase) SubmitRating(ctx context.Context, nodeID primitive.ObjectID, raterID string, score int32) (*domain.Rating, error) {
	uc.logger.Info("Submitting rating",
		zap.String("node_id", nodeID.Hex()),
		zap.String("rater_id", raterID),
		zap.Int32("score", score))

	node, err := uc.nodes.GetByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if !node.Ratable {
		return nil, fmt.Errorf("%w: node does not accept ratings", domain.ErrInvalidInput)
	}

	rating, err := domain.NewRating(nodeID, raterID, score)
	if err != nil {
		uc.logger.Warn("Invalid rating submission", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	if err := uc.ratings.Create(ctx, rating); err != nil {
		if errors.Is(err, domain.ErrRatingExists) {
			return nil, err
		}
		uc.logger.Error("Failed to save rating to repository", zap.Error(err))
		return nil, fmt.Errorf("%w: failed to create rating: %v", domain.ErrRepository, err)
	}

	// Inline binding: the aggregate recomputation runs within this call.
	// A failure here surfaces to the caller, but the record is already
	// durable: the next event for the node re-derives correct stats.
	if uc.behavior != nil {
		if err := uc.behavior.OnRatingCreated(ctx, rating.Ref()); err != nil {
			uc.logger.Error("Rating behavior failed on create", zap.Error(err), zap.String("rating_id", rating.ID.Hex()))
			return nil, err
		}
	}

	if err := uc.pub.PublishRatingCreated(ctx, rating); err != nil {
		// Non-critical: the rating is stored and, in inline mode, already
		// aggregated. Log and continue.
		uc.logger.Warn("Failed to publish rating.created event", zap.Error(err), zap.String("rating_id", rating.ID.Hex()))
	}

	if uc.metrics != nil {
		uc.metrics.RatingsSubmittedTotal.Inc()
	}
	uc.logger.Info("Rating submitted successfully", zap.String("rating_id", rating.ID.Hex()))
	return rating, nil
}

// RetractRating deletes a rating record and notifies the bound behavior.
// Only the original rater or an admin may retract a rating. The ref is
// captured before deletion since the record is gone by the time the
// behavior fires.
func (uc *RatingUsecase) RetractRating(ctx context.Context, ratingID primitive.ObjectID, requesterID, requesterRole string) error {
	uc.logger.Info("Retracting rating",
		zap.String("rating_id", ratingID.Hex()),
		zap.String("requester_id", requesterID))

	rating, err := uc.ratings.GetByID(ctx, ratingID)
	if err != nil {
		return err
	}

	if rating.RaterID != requesterID && requesterRole != AdminRole {
		uc.logger.Warn("User forbidden to retract rating",
			zap.String("rating_id", ratingID.Hex()),
			zap.String("rater_id", rating.RaterID),
			zap.String("requester_id", requesterID))
		return domain.ErrForbidden
	}

	ref := rating.Ref()

	if err := uc.ratings.Delete(ctx, ratingID); err != nil {
		return err
	}

	if uc.behavior != nil {
		if err := uc.behavior.OnRatingDeleted(ctx, ref); err != nil {
			uc.logger.Error("Rating behavior failed on delete", zap.Error(err), zap.String("rating_id", ratingID.Hex()))
			return err
		}
	}

	if err := uc.pub.PublishRatingDeleted(ctx, ref, rating.RaterID); err != nil {
		uc.logger.Warn("Failed to publish rating.deleted event", zap.Error(err), zap.String("rating_id", ratingID.Hex()))
	}

	if uc.metrics != nil {
		uc.metrics.RatingsRetractedTotal.Inc()
	}
	uc.logger.Info("Rating retracted successfully", zap.String("rating_id", ratingID.Hex()))
	return nil
}

// GetNodeStats returns a node's aggregate rating stats, consulting the
// cache first when one is configured.
func (uc *RatingUsecase) GetNodeStats(ctx context.Context, nodeID primitive.ObjectID) (domain.RatingStats, error) {
	if uc.cache != nil {
		cached, err := uc.cache.GetStats(ctx, nodeID)
		if err != nil {
			uc.logger.Warn("Stats cache read failed", zap.Error(err), zap.String("node_id", nodeID.Hex()))
		} else if cached != nil {
			if uc.metrics != nil {
				uc.metrics.StatsCacheHitsTotal.Inc()
			}
			return *cached, nil
		}
	}

	node, err := uc.nodes.GetByID(ctx, nodeID)
	if err != nil {
		return domain.RatingStats{}, err
	}

	if uc.cache != nil {
		if err := uc.cache.SetStats(ctx, nodeID, node.Stats); err != nil {
			uc.logger.Warn("Stats cache write failed", zap.Error(err), zap.String("node_id", nodeID.Hex()))
		}
	}
	return node.Stats, nil
}

// ListRatings returns a page of a node's rating records.
func (uc *RatingUsecase) ListRatings(ctx context.Context, nodeID primitive.ObjectID, page, limit int32) ([]*domain.Rating, int64, error) {
	uc.logger.Debug("Listing ratings", zap.String("node_id", nodeID.Hex()), zap.Int32("page", page), zap.Int32("limit", limit))

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	} else if limit > 100 {
		limit = 100
	}
	return uc.ratings.FindByNode(ctx, nodeID, page, limit)
}
