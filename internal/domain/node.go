package domain

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RatingStats holds the aggregate rating attributes of a node.
// They are derived values: the aggregator overwrites all three together
// from the node's current set of rating records.
type RatingStats struct {
	AverageRating float64
	TotalRating   int64
	RatingCount   int64
}

// Node is a content node that may opt into the rating feature.
// The Ratable flag is the capability marker: only ratable nodes accept
// rating submissions and have their stats recomputed. Everything else on
// the node is managed by its owner; the aggregator touches Stats only.
type Node struct {
	ID        primitive.ObjectID
	Name      string
	OwnerID   string // ID of the user who created the node
	Ratable   bool   // Capability marker for the rating feature
	Stats     RatingStats
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewNode creates a new node instance. Nodes start with zeroed stats; the
// Ratable flag is set explicitly by the caller.
func NewNode(name, ownerID string, ratable bool) (*Node, error) {
	if name == "" {
		return nil, errors.New("name cannot be empty")
	}
	if ownerID == "" {
		return nil, errors.New("ownerID cannot be empty")
	}

	now := time.Now().UTC()
	return &Node{
		ID:        primitive.NewObjectID(),
		Name:      name,
		OwnerID:   ownerID,
		Ratable:   ratable,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
