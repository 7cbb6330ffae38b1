package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/content-platform/rating-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const statsTTL = 5 * time.Minute

// StatsCache is a Redis-backed cache of node rating stats. Entries carry a
// TTL so a missed invalidation heals on its own.
type StatsCache struct {
	client *redis.Client
}

// NewStatsCache connects to Redis and returns a StatsCache.
func NewStatsCache(addr string) (*StatsCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, err
	}
	return &StatsCache{client: client}, nil
}

func statsKey(nodeID primitive.ObjectID) string {
	return "node:stats:" + nodeID.Hex()
}

// GetStats returns the cached stats for a node, or (nil, nil) on a miss.
func (c *StatsCache) GetStats(ctx context.Context, nodeID primitive.ObjectID) (*domain.RatingStats, error) {
	data, err := c.client.Get(ctx, statsKey(nodeID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stats domain.RatingStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SetStats caches the stats for a node.
func (c *StatsCache) SetStats(ctx context.Context, nodeID primitive.ObjectID, stats domain.RatingStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statsKey(nodeID), data, statsTTL).Err()
}

// InvalidateStats drops the cached stats for a node.
func (c *StatsCache) InvalidateStats(ctx context.Context, nodeID primitive.ObjectID) error {
	return c.client.Del(ctx, statsKey(nodeID)).Err()
}

// Close closes the underlying Redis connection.
func (c *StatsCache) Close() error {
	return c.client.Close()
}
