package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/content-platform/rating-service/internal/domain"
	"github.com/content-platform/rating-service/internal/platform/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const nodeCollectionName = "nodes"

// NodeRepository implements domain.NodeRepository using MongoDB.
type NodeRepository struct {
	collection *mongo.Collection
	logger     *logger.Logger
}

// NewNodeRepository creates a new MongoDB node repository.
func NewNodeRepository(db *mongo.Database, log *logger.Logger) (*NodeRepository, error) {
	collection := db.Collection(nodeCollectionName)

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}}},
		{Keys: bson.D{{Key: "ratable", Value: 1}}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		// Indexes may already exist or be managed externally; don't fail startup.
		log.Error("Failed to create indexes for nodes collection", zap.Error(err))
	} else {
		log.Info("Successfully ensured indexes for nodes collection")
	}

	return &NodeRepository{
		collection: collection,
		logger:     log.Named("NodeRepository"),
	}, nil
}

// Create inserts a new node into the database.
func (r *NodeRepository) Create(ctx context.Context, node *domain.Node) error {
	r.logger.Info("Creating node in DB", zap.String("name", node.Name), zap.String("owner_id", node.OwnerID))

	doc := fromDomainNode(node)
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}
	node.ID = doc.ID

	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	node.CreatedAt = now
	node.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		r.logger.Error("Failed to insert node into DB", zap.Error(err))
		return fmt.Errorf("db insert failed: %w", err)
	}
	r.logger.Info("Node created successfully in DB", zap.String("node_id", doc.ID.Hex()))
	return nil
}

// GetByID retrieves a node by its ID.
func (r *NodeRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Node, error) {
	r.logger.Debug("Getting node by ID from DB", zap.String("node_id", id.Hex()))
	var doc nodeDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			r.logger.Debug("Node not found in DB", zap.String("node_id", id.Hex()))
			return nil, domain.ErrNotFound
		}
		r.logger.Error("Failed to get node by ID from DB", zap.Error(err), zap.String("node_id", id.Hex()))
		return nil, fmt.Errorf("db findone failed: %w", err)
	}
	return doc.toDomainNode(), nil
}

// SetRatable toggles the rating capability marker on a node.
func (r *NodeRepository) SetRatable(ctx context.Context, id primitive.ObjectID, ratable bool) error {
	r.logger.Info("Setting ratable flag on node", zap.String("node_id", id.Hex()), zap.Bool("ratable", ratable))

	update := bson.M{"$set": bson.M{
		"ratable":    ratable,
		"updated_at": time.Now().UTC(),
	}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		r.logger.Error("Failed to set ratable flag", zap.Error(err), zap.String("node_id", id.Hex()))
		return fmt.Errorf("db update failed: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateRatingStats overwrites the node's aggregate rating attributes.
// All three fields go through a single UpdateOne, so concurrent readers
// observe either the previous complete set or the new one.
func (r *NodeRepository) UpdateRatingStats(ctx context.Context, id primitive.ObjectID, stats domain.RatingStats) error {
	r.logger.Debug("Updating rating stats on node",
		zap.String("node_id", id.Hex()),
		zap.Float64("average", stats.AverageRating),
		zap.Int64("total", stats.TotalRating),
		zap.Int64("count", stats.RatingCount))

	update := bson.M{"$set": bson.M{
		"average_rating": stats.AverageRating,
		"total_rating":   stats.TotalRating,
		"rating_count":   stats.RatingCount,
		"updated_at":     time.Now().UTC(),
	}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		r.logger.Error("Failed to update rating stats", zap.Error(err), zap.String("node_id", id.Hex()))
		return fmt.Errorf("db update failed: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
