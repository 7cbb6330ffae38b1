package usecase

import (
	"context"
	"fmt"

	"github.com/content-platform/rating-service/internal/domain"
	"github.com/content-platform/rating-service/internal/platform/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// StatsRecomputer forces an aggregate recomputation for a node outside of
// a rating event.
type StatsRecomputer interface {
	RecomputeNode(ctx context.Context, nodeID primitive.ObjectID) error
}

// NodeUsecase implements node management: creation, lookup, and toggling
// the rating capability.
type NodeUsecase struct {
	nodes      domain.NodeRepository
	recomputer StatsRecomputer // optional, may be nil
	logger     *logger.Logger
}

// NewNodeUsecase creates a new NodeUsecase.
func NewNodeUsecase(nodes domain.NodeRepository, recomputer StatsRecomputer, log *logger.Logger) *NodeUsecase {
	return &NodeUsecase{
		nodes:      nodes,
		recomputer: recomputer,
		logger:     log.Named("NodeUsecase"),
	}
}

// CreateNode creates a new node owned by the given user.
func (uc *NodeUsecase) CreateNode(ctx context.Context, name, ownerID string, ratable bool) (*domain.Node, error) {
	uc.logger.Info("Creating node", zap.String("name", name), zap.String("owner_id", ownerID), zap.Bool("ratable", ratable))

	node, err := domain.NewNode(name, ownerID, ratable)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	if err := uc.nodes.Create(ctx, node); err != nil {
		uc.logger.Error("Failed to save node to repository", zap.Error(err))
		return nil, fmt.Errorf("%w: failed to create node: %v", domain.ErrRepository, err)
	}

	uc.logger.Info("Node created successfully", zap.String("node_id", node.ID.Hex()))
	return node, nil
}

// GetNode retrieves a node by its ID.
func (uc *NodeUsecase) GetNode(ctx context.Context, nodeID primitive.ObjectID) (*domain.Node, error) {
	node, err := uc.nodes.GetByID(ctx, nodeID)
	if err != nil {
		uc.logger.Debug("Failed to get node", zap.Error(err), zap.String("node_id", nodeID.Hex()))
		return nil, err
	}
	return node, nil
}

// SetRatable toggles the rating capability on a node. Only the node's
// owner or an admin may change it. Re-enabling the capability triggers a
// recomputation: ratings may have been retracted while recomputation was
// suppressed, leaving the stored stats stale.
func (uc *NodeUsecase) SetRatable(ctx context.Context, nodeID primitive.ObjectID, ratable bool, requesterID, requesterRole string) (*domain.Node, error) {
	uc.logger.Info("Setting ratable capability",
		zap.String("node_id", nodeID.Hex()),
		zap.Bool("ratable", ratable),
		zap.String("requester_id", requesterID))

	node, err := uc.nodes.GetByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	if node.OwnerID != requesterID && requesterRole != AdminRole {
		uc.logger.Warn("User forbidden to change ratable capability",
			zap.String("node_id", nodeID.Hex()),
			zap.String("owner_id", node.OwnerID),
			zap.String("requester_id", requesterID))
		return nil, domain.ErrForbidden
	}

	if node.Ratable == ratable {
		return node, nil
	}

	if err := uc.nodes.SetRatable(ctx, nodeID, ratable); err != nil {
		return nil, err
	}
	node.Ratable = ratable

	if ratable && uc.recomputer != nil {
		if err := uc.recomputer.RecomputeNode(ctx, nodeID); err != nil {
			uc.logger.Error("Recompute after enabling capability failed", zap.Error(err), zap.String("node_id", nodeID.Hex()))
			return nil, err
		}
		refreshed, err := uc.nodes.GetByID(ctx, nodeID)
		if err != nil {
			return nil, err
		}
		node = refreshed
	}

	uc.logger.Info("Ratable capability updated", zap.String("node_id", nodeID.Hex()), zap.Bool("ratable", ratable))
	return node, nil
}
