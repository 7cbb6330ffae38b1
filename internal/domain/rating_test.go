package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestNewRating(t *testing.T) {
	nodeID := primitive.NewObjectID()

	t.Run("valid", func(t *testing.T) {
		rating, err := NewRating(nodeID, "user-1", 5)
		require.NoError(t, err)
		assert.False(t, rating.ID.IsZero())
		assert.Equal(t, nodeID, rating.NodeID)
		assert.Equal(t, int32(5), rating.Score)
		assert.Equal(t, "user-1", rating.RaterID)
		assert.False(t, rating.CreatedAt.IsZero())
	})

	t.Run("score boundaries", func(t *testing.T) {
		for _, score := range []int32{1, 5} {
			_, err := NewRating(nodeID, "user-1", score)
			assert.NoError(t, err)
		}
		for _, score := range []int32{0, 6, -1} {
			_, err := NewRating(nodeID, "user-1", score)
			assert.Error(t, err)
		}
	})

	t.Run("empty rater", func(t *testing.T) {
		_, err := NewRating(nodeID, "", 3)
		assert.Error(t, err)
	})

	t.Run("zero node id", func(t *testing.T) {
		_, err := NewRating(primitive.NilObjectID, "user-1", 3)
		assert.Error(t, err)
	})
}

func TestRating_Ref(t *testing.T) {
	nodeID := primitive.NewObjectID()
	rating, err := NewRating(nodeID, "user-1", 4)
	require.NoError(t, err)

	ref := rating.Ref()
	assert.Equal(t, rating.ID, ref.RatingID)
	assert.Equal(t, nodeID, ref.NodeID)
}

func TestNewNode(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		node, err := NewNode("article", "owner-1", true)
		require.NoError(t, err)
		assert.False(t, node.ID.IsZero())
		assert.True(t, node.Ratable)
		assert.Equal(t, RatingStats{}, node.Stats)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := NewNode("", "owner-1", true)
		assert.Error(t, err)
	})

	t.Run("empty owner", func(t *testing.T) {
		_, err := NewNode("article", "", false)
		assert.Error(t, err)
	})
}
