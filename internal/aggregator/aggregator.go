package aggregator

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

// Aggregator keeps a node's aggregate rating attributes consistent with
// its current set of rating records. It is stateless: every invocation
// re-derives average/total/count from the records as they exist at call
// time, so delivering the same notification twice, or delivering create
// and delete notifications out of order, always settles on the correct
// values.
//
// Aggregator implements domain.RatingBehavior; both trigger methods funnel
// into the same recomputation path.
type Aggregator struct {
	nodes   domain.NodeRepository
	ratings domain.RatingRepository
	cache   domain.StatsCache // optional, may be nil
	metrics *metrics.MetricsManager
	logger  *logger.Logger
}

// New creates a new Aggregator. cache and mm may be nil.
func New(nodes domain.NodeRepository, ratings domain.RatingRepository, cache domain.StatsCache, mm *metrics.MetricsManager, log *logger.Logger) *Aggregator {
	return &Aggregator{
		nodes:   nodes,
		ratings: ratings,
		cache:   cache,
		metrics: mm,
		logger:  log.Named("Aggregator"),
	}
}

// OnRatingCreated is invoked after a new rating record has been attached
// to a node.
func (a *Aggregator) OnRatingCreated(ctx context.Context, ref domain.RatingRef) error {
	return a.recompute(ctx, ref.NodeID)
}

// OnRatingDeleted is invoked after a rating record has been removed from a
// node. The record itself may already be gone; only ref.NodeID is used.
func (a *Aggregator) OnRatingDeleted(ctx context.Context, ref domain.RatingRef) error {
	return a.recompute(ctx, ref.NodeID)
}

// RecomputeNode forces a recomputation for a node outside of a rating
// event, e.g. after the rating capability is re-enabled and the stored
// stats may be stale.
func (a *Aggregator) RecomputeNode(ctx context.Context, nodeID primitive.ObjectID) error {
	return a.recompute(ctx, nodeID)
}

// recompute re-reads the node's rating records and overwrites its three
// aggregate attributes. A node that no longer exists, or that does not
// carry the rating capability, is skipped silently: ratings can be
// orphaned by unrelated node deletions, and that is not an error here.
//
// With zero records the attributes are reset to 0/0/0 rather than left
// stale or divided by zero.
func (a *Aggregator) recompute(ctx context.Context, nodeID primitive.ObjectID) error {
	node, err := a.nodes.GetByID(ctx, nodeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.logger.Debug("Skipping recompute: node not found", zap.String("node_id", nodeID.Hex()))
			a.countNoop()
			return nil
		}
		return fmt.Errorf("aggregator: load node %s: %w", nodeID.Hex(), err)
	}
	if !node.Ratable {
		a.logger.Debug("Skipping recompute: node is not ratable", zap.String("node_id", nodeID.Hex()))
		a.countNoop()
		return nil
	}

	records, err := a.ratings.ListByNode(ctx, nodeID)
	if err != nil {
		return fmt.Errorf("aggregator: list ratings for node %s: %w", nodeID.Hex(), err)
	}

	stats := Compute(records)

	if err := a.nodes.UpdateRatingStats(ctx, nodeID, stats); err != nil {
		return fmt.Errorf("aggregator: write stats for node %s: %w", nodeID.Hex(), err)
	}

	if a.cache != nil {
		if err := a.cache.InvalidateStats(ctx, nodeID); err != nil {
			// The cache carries a TTL; stale reads resolve themselves.
			a.logger.Warn("Failed to invalidate stats cache", zap.String("node_id", nodeID.Hex()), zap.Error(err))
		}
	}

	if a.metrics != nil {
		a.metrics.StatsRecomputesTotal.Inc()
	}
	a.logger.Info("Rating stats recomputed",
		zap.String("node_id", nodeID.Hex()),
		zap.Float64("average", stats.AverageRating),
		zap.Int64("total", stats.TotalRating),
		zap.Int64("count", stats.RatingCount))
	return nil
}

func (a *Aggregator) countNoop() {
	if a.metrics != nil {
		a.metrics.RecomputeNoopsTotal.Inc()
	}
}

// Compute derives the aggregate stats from a set of rating records.
// An empty set yields 0/0/0.
func Compute(records []*domain.Rating) domain.RatingStats {
	var stats domain.RatingStats
	for _, r := range records {
		stats.TotalRating += int64(r.Score)
	}
	stats.RatingCount = int64(len(records))
	if stats.RatingCount > 0 {
		stats.AverageRating = float64(stats.TotalRating) / float64(stats.RatingCount)
	}
	return stats
}
