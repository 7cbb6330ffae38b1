package domain

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NodeRepository defines the interface for node persistence.
// Methods operate on the clean domain.Node entity; the mapping to database
// structures is handled by the repository implementation.
type NodeRepository interface {
	Create(ctx context.Context, node *Node) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*Node, error)

	// SetRatable toggles the rating capability marker on a node.
	SetRatable(ctx context.Context, id primitive.ObjectID, ratable bool) error

	// UpdateRatingStats overwrites the node's three aggregate rating
	// attributes in a single write, so concurrent readers never observe a
	// partially updated set.
	UpdateRatingStats(ctx context.Context, id primitive.ObjectID, stats RatingStats) error
}

// StatsCache caches a node's aggregate rating stats. A cache miss is
// reported as (nil, nil). Implementations are optional collaborators: a
// nil StatsCache disables caching entirely.
type StatsCache interface {
	GetStats(ctx context.Context, nodeID primitive.ObjectID) (*RatingStats, error)
	SetStats(ctx context.Context, nodeID primitive.ObjectID, stats RatingStats) error
	InvalidateStats(ctx context.Context, nodeID primitive.ObjectID) error
}

// RatingRepository defines the interface for rating record persistence.
type RatingRepository interface {
	Create(ctx context.Context, rating *Rating) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*Rating, error)
	Delete(ctx context.Context, id primitive.ObjectID) error

	// ListByNode returns all current rating records of a node. The
	// aggregator re-reads the full set on every recomputation instead of
	// trusting cached counts.
	ListByNode(ctx context.Context, nodeID primitive.ObjectID) ([]*Rating, error)

	// FindByNode returns a page of a node's ratings plus the total count.
	FindByNode(ctx context.Context, nodeID primitive.ObjectID, page, limit int32) ([]*Rating, int64, error)
}
