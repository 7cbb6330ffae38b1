package mongodb

import (
	"time"

	"github.com/content-platform/rating-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// nodeDocument is the persisted shape of a domain.Node. The aggregate
// stats fields are nullable: a node that has never been rated carries no
// stats at all, matching "overwritten as one set" semantics.
type nodeDocument struct {
	ID            primitive.ObjectID `bson:"_id"`
	Name          string             `bson:"name"`
	OwnerID       string             `bson:"owner_id"`
	Ratable       bool               `bson:"ratable"`
	AverageRating *float64           `bson:"average_rating,omitempty"`
	TotalRating   *int64             `bson:"total_rating,omitempty"`
	RatingCount   *int64             `bson:"rating_count,omitempty"`
	CreatedAt     time.Time          `bson:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at"`
}

func fromDomainNode(n *domain.Node) *nodeDocument {
	doc := &nodeDocument{
		ID:        n.ID,
		Name:      n.Name,
		OwnerID:   n.OwnerID,
		Ratable:   n.Ratable,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
	if n.Stats.RatingCount > 0 || n.Stats.TotalRating > 0 {
		doc.AverageRating = &n.Stats.AverageRating
		doc.TotalRating = &n.Stats.TotalRating
		doc.RatingCount = &n.Stats.RatingCount
	}
	return doc
}

func (d *nodeDocument) toDomainNode() *domain.Node {
	n := &domain.Node{
		ID:        d.ID,
		Name:      d.Name,
		OwnerID:   d.OwnerID,
		Ratable:   d.Ratable,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.AverageRating != nil {
		n.Stats.AverageRating = *d.AverageRating
	}
	if d.TotalRating != nil {
		n.Stats.TotalRating = *d.TotalRating
	}
	if d.RatingCount != nil {
		n.Stats.RatingCount = *d.RatingCount
	}
	return n
}

// ratingDocument is the persisted shape of a domain.Rating.
type ratingDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	NodeID    primitive.ObjectID `bson:"node_id"`
	Score     int32              `bson:"score"`
	RaterID   string             `bson:"rater_id"`
	CreatedAt time.Time          `bson:"created_at"`
}

func fromDomainRating(r *domain.Rating) *ratingDocument {
	return &ratingDocument{
		ID:        r.ID,
		NodeID:    r.NodeID,
		Score:     r.Score,
		RaterID:   r.RaterID,
		CreatedAt: r.CreatedAt,
	}
}

func (d *ratingDocument) toDomainRating() *domain.Rating {
	return &domain.Rating{
		ID:        d.ID,
		NodeID:    d.NodeID,
		Score:     d.Score,
		RaterID:   d.RaterID,
		CreatedAt: d.CreatedAt,
	}
}
