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
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const ratingCollectionName = "ratings"

// RatingRepository implements domain.RatingRepository using MongoDB.
type RatingRepository struct {
	collection *mongo.Collection
	logger     *logger.Logger
}

// NewRatingRepository creates a new MongoDB rating repository.
func NewRatingRepository(db *mongo.Database, log *logger.Logger) (*RatingRepository, error) {
	collection := db.Collection(ratingCollectionName)

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "node_id", Value: 1}}},
		// One rating per rater per node.
		{Keys: bson.D{{Key: "node_id", Value: 1}, {Key: "rater_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		log.Error("Failed to create indexes for ratings collection", zap.Error(err))
	} else {
		log.Info("Successfully ensured indexes for ratings collection")
	}

	return &RatingRepository{
		collection: collection,
		logger:     log.Named("RatingRepository"),
	}, nil
}

// Create inserts a new rating record.
func (r *RatingRepository) Create(ctx context.Context, rating *domain.Rating) error {
	r.logger.Info("Creating rating in DB", zap.String("node_id", rating.NodeID.Hex()), zap.String("rater_id", rating.RaterID))

	doc := fromDomainRating(rating)
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}
	rating.ID = doc.ID

	now := time.Now().UTC()
	doc.CreatedAt = now
	rating.CreatedAt = now

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			r.logger.Warn("Duplicate key error on rating creation", zap.Error(err))
			return domain.ErrRatingExists
		}
		r.logger.Error("Failed to insert rating into DB", zap.Error(err))
		return fmt.Errorf("db insert failed: %w", err)
	}
	r.logger.Info("Rating created successfully in DB", zap.String("rating_id", doc.ID.Hex()))
	return nil
}

// GetByID retrieves a rating record by its ID.
func (r *RatingRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Rating, error) {
	r.logger.Debug("Getting rating by ID from DB", zap.String("rating_id", id.Hex()))
	var doc ratingDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("Failed to get rating by ID from DB", zap.Error(err), zap.String("rating_id", id.Hex()))
		return nil, fmt.Errorf("db findone failed: %w", err)
	}
	return doc.toDomainRating(), nil
}

// Delete removes a rating record.
func (r *RatingRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	r.logger.Info("Deleting rating from DB", zap.String("rating_id", id.Hex()))
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		r.logger.Error("Failed to delete rating from DB", zap.Error(err), zap.String("rating_id", id.Hex()))
		return fmt.Errorf("db delete failed: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByNode returns all current rating records of a node, the full set
// the aggregator recomputes from.
func (r *RatingRepository) ListByNode(ctx context.Context, nodeID primitive.ObjectID) ([]*domain.Rating, error) {
	r.logger.Debug("Listing ratings by node_id from DB", zap.String("node_id", nodeID.Hex()))

	cursor, err := r.collection.Find(ctx, bson.M{"node_id": nodeID})
	if err != nil {
		r.logger.Error("Failed to list ratings by node_id from DB", zap.Error(err), zap.String("node_id", nodeID.Hex()))
		return nil, fmt.Errorf("db find failed: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []*ratingDocument
	if err = cursor.All(ctx, &docs); err != nil {
		r.logger.Error("Failed to decode ratings by node_id from DB", zap.Error(err))
		return nil, fmt.Errorf("db cursor all failed: %w", err)
	}

	ratings := make([]*domain.Rating, len(docs))
	for i, doc := range docs {
		ratings[i] = doc.toDomainRating()
	}
	return ratings, nil
}

// FindByNode returns a page of a node's ratings plus the total count.
func (r *RatingRepository) FindByNode(ctx context.Context, nodeID primitive.ObjectID, page, limit int32) ([]*domain.Rating, int64, error) {
	r.logger.Debug("Finding ratings by node_id from DB", zap.String("node_id", nodeID.Hex()), zap.Int32("page", page), zap.Int32("limit", limit))

	query := bson.M{"node_id": nodeID}

	findOptions := options.Find()
	if limit > 0 {
		findOptions.SetLimit(int64(limit))
		if page > 0 {
			findOptions.SetSkip(int64(page-1) * int64(limit))
		}
	}
	findOptions.SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.collection.Find(ctx, query, findOptions)
	if err != nil {
		r.logger.Error("Failed to find ratings by node_id from DB", zap.Error(err), zap.String("node_id", nodeID.Hex()))
		return nil, 0, fmt.Errorf("db find failed: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []*ratingDocument
	if err = cursor.All(ctx, &docs); err != nil {
		r.logger.Error("Failed to decode ratings by node_id from DB", zap.Error(err))
		return nil, 0, fmt.Errorf("db cursor all failed: %w", err)
	}

	ratings := make([]*domain.Rating, len(docs))
	for i, doc := range docs {
		ratings[i] = doc.toDomainRating()
	}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		r.logger.Error("Failed to count ratings by node_id from DB", zap.Error(err))
		return nil, 0, fmt.Errorf("db count failed: %w", err)
	}

	return ratings, total, nil
}
