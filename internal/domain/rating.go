package domain

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Rating is a single rating submission, owned by exactly one node.
// The owning node is fixed at creation time and never changes.
type Rating struct {
	ID        primitive.ObjectID
	NodeID    primitive.ObjectID // Owning node, immutable after creation
	Score     int32              // 1-5 stars
	RaterID   string             // ID of the user who submitted the rating
	CreatedAt time.Time
}

// NewRating creates a new rating instance. The 1-5 range is enforced here,
// at the submission boundary; the aggregator itself sums whatever scores
// the store returns.
func NewRating(nodeID primitive.ObjectID, raterID string, score int32) (*Rating, error) {
	if nodeID.IsZero() {
		return nil, errors.New("nodeID cannot be empty")
	}
	if raterID == "" {
		return nil, errors.New("raterID cannot be empty")
	}
	if score < 1 || score > 5 {
		return nil, errors.New("score must be between 1 and 5")
	}

	return &Rating{
		ID:        primitive.NewObjectID(),
		NodeID:    nodeID,
		RaterID:   raterID,
		Score:     score,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// RatingRef identifies a rating event's subject. By the time a delete
// notification fires the record itself may already be gone from the store,
// so the ref carries the owning node ID alongside the rating ID.
type RatingRef struct {
	RatingID primitive.ObjectID
	NodeID   primitive.ObjectID
}

// Ref returns the event reference for a rating.
func (r *Rating) Ref() RatingRef {
	return RatingRef{RatingID: r.ID, NodeID: r.NodeID}
}
