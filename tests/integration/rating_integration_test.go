package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	httpAdapter "github.com/content-platform/rating-service/internal/adapter/http"
	natsAdapter "github.com/content-platform/rating-service/internal/adapter/messaging/nats"
	mongoRepo "github.com/content-platform/rating-service/internal/adapter/repository/mongodb"
	"github.com/content-platform/rating-service/internal/aggregator"
	"github.com/content-platform/rating-service/internal/domain"
	"github.com/content-platform/rating-service/internal/middleware"
	platformLogger "github.com/content-platform/rating-service/internal/platform/logger"
	"github.com/content-platform/rating-service/internal/usecase"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var (
	testDBClient   *mongo.Client
	testNodeRepo   *mongoRepo.NodeRepository
	testRatingRepo *mongoRepo.RatingRepository
	testAggregator *aggregator.Aggregator
	testNatsURL    string
	testNatsPub    *natsAdapter.Publisher
	testServer     *httptest.Server
	testLogger     *platformLogger.Logger
)

const (
	testDBName    = "test_ratings_db"
	testJWTSecret = "test-secret-for-integration"
	testOwnerID   = "owner456"
	testRaterID   = "rater123"
	testAdminID   = "adminXYZ"
	adminRole     = "admin"
	userRole      = "user"
)

// TestMain sets up the test environment (MongoDB, NATS, HTTP server).
func TestMain(m *testing.M) {
	var err error
	testLogger = platformLogger.NewLogger()

	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not construct pool: %s", err)
	}
	if err = pool.Client.Ping(); err != nil {
		log.Fatalf("Could not connect to Docker: %s", err)
	}

	mongoResource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mongo",
		Tag:        "5.0",
		Env: []string{
			"MONGO_INITDB_ROOT_USERNAME=root",
			"MONGO_INITDB_ROOT_PASSWORD=password",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start MongoDB resource: %s", err)
	}
	mongoURI := fmt.Sprintf("mongodb://root:password@%s/%s?authSource=admin", mongoResource.GetHostPort("27017/tcp"), testDBName)

	natsResource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "nats",
		Tag:        "2.9",
		Cmd:        []string{"-js"},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start NATS resource: %s", err)
	}
	testNatsURL = fmt.Sprintf("nats://%s", natsResource.GetHostPort("4222/tcp"))

	if err := pool.Retry(func() error {
		var errRetry error
		testDBClient, errRetry = mongo.Connect(context.Background(), options.Client().ApplyURI(mongoURI))
		if errRetry != nil {
			return errRetry
		}
		return testDBClient.Ping(context.Background(), nil)
	}); err != nil {
		log.Fatalf("Could not connect to MongoDB: %s", err)
	}

	if err := pool.Retry(func() error {
		var errRetry error
		testNatsPub, errRetry = natsAdapter.NewPublisher(testNatsURL, testLogger, "test-rating-service-integration")
		if errRetry != nil {
			testLogger.Error("NATS connection attempt failed in TestMain", zap.Error(errRetry))
			return errRetry
		}
		return nil
	}); err != nil {
		log.Fatalf("Could not connect to NATS: %s", err)
	}

	db := testDBClient.Database(testDBName)
	testNodeRepo, err = mongoRepo.NewNodeRepository(db, testLogger)
	if err != nil {
		log.Fatalf("Could not create test node repository: %s", err)
	}
	testRatingRepo, err = mongoRepo.NewRatingRepository(db, testLogger)
	if err != nil {
		log.Fatalf("Could not create test rating repository: %s", err)
	}

	testAggregator = aggregator.New(testNodeRepo, testRatingRepo, nil, nil, testLogger)
	ratingUsecase := usecase.NewRatingUsecase(testNodeRepo, testRatingRepo, testAggregator, nil, testNatsPub, nil, testLogger)
	nodeUsecase := usecase.NewNodeUsecase(testNodeRepo, testAggregator, testLogger)

	handler := httpAdapter.NewHandler(nodeUsecase, ratingUsecase, testLogger)
	router := httpAdapter.NewRouter(handler, testJWTSecret, nil, testLogger)
	testServer = httptest.NewServer(router)

	code := m.Run()

	testServer.Close()
	testNatsPub.Close()
	if err := pool.Purge(mongoResource); err != nil {
		log.Fatalf("Could not purge MongoDB resource: %s", err)
	}
	if err := pool.Purge(natsResource); err != nil {
		log.Fatalf("Could not purge NATS resource: %s", err)
	}
	os.Exit(code)
}

func clearCollections(t *testing.T) {
	t.Helper()
	db := testDBClient.Database(testDBName)
	_, err := db.Collection("nodes").DeleteMany(context.Background(), bson.M{})
	require.NoError(t, err, "Failed to clear nodes collection")
	_, err = db.Collection("ratings").DeleteMany(context.Background(), bson.M{})
	require.NoError(t, err, "Failed to clear ratings collection")
}

func signTestToken(t *testing.T, userID, role string) string {
	t.Helper()
	claims := middleware.Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func doRequest(t *testing.T, method, path, token string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, testServer.URL+path, reqBody)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := testServer.Client().Do(req)
	require.NoError(t, err)
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, respBody
}

type nodePayload struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	OwnerID       string  `json:"owner_id"`
	Ratable       bool    `json:"ratable"`
	AverageRating float64 `json:"average_rating"`
	TotalRating   int64   `json:"total_rating"`
	RatingCount   int64   `json:"rating_count"`
}

type ratingPayload struct {
	ID      string `json:"id"`
	NodeID  string `json:"node_id"`
	Score   int32  `json:"score"`
	RaterID string `json:"rater_id"`
}

type statsPayload struct {
	NodeID        string  `json:"node_id"`
	AverageRating float64 `json:"average_rating"`
	TotalRating   int64   `json:"total_rating"`
	RatingCount   int64   `json:"rating_count"`
}

func createTestNode(t *testing.T, ownerToken string, ratable bool) nodePayload {
	t.Helper()
	resp, body := doRequest(t, http.MethodPost, "/api/nodes", ownerToken, map[string]interface{}{
		"name":    "test article",
		"ratable": ratable,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var node nodePayload
	require.NoError(t, json.Unmarshal(body, &node))
	return node
}

func submitTestRating(t *testing.T, token, nodeID string, score int32) ratingPayload {
	t.Helper()
	resp, body := doRequest(t, http.MethodPost, "/api/nodes/"+nodeID+"/ratings", token, map[string]interface{}{
		"score": score,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var rating ratingPayload
	require.NoError(t, json.Unmarshal(body, &rating))
	return rating
}

func getNodeStats(t *testing.T, nodeID string) statsPayload {
	t.Helper()
	resp, body := doRequest(t, http.MethodGet, "/api/nodes/"+nodeID+"/rating", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var stats statsPayload
	require.NoError(t, json.Unmarshal(body, &stats))
	return stats
}

func TestSubmitRatings_AggregatesProgressively(t *testing.T) {
	clearCollections(t)
	ownerToken := signTestToken(t, testOwnerID, userRole)
	node := createTestNode(t, ownerToken, true)

	submitTestRating(t, signTestToken(t, "rater-a", userRole), node.ID, 1)
	stats := getNodeStats(t, node.ID)
	assert.InDelta(t, 1.0, stats.AverageRating, 1e-9)
	assert.Equal(t, int64(1), stats.TotalRating)
	assert.Equal(t, int64(1), stats.RatingCount)

	submitTestRating(t, signTestToken(t, "rater-b", userRole), node.ID, 2)
	stats = getNodeStats(t, node.ID)
	assert.InDelta(t, 1.5, stats.AverageRating, 1e-9)
	assert.Equal(t, int64(3), stats.TotalRating)
	assert.Equal(t, int64(2), stats.RatingCount)

	submitTestRating(t, signTestToken(t, "rater-c", userRole), node.ID, 3)
	stats = getNodeStats(t, node.ID)
	assert.InDelta(t, 2.0, stats.AverageRating, 1e-9)
	assert.Equal(t, int64(6), stats.TotalRating)
	assert.Equal(t, int64(3), stats.RatingCount)
}

func TestRetractRating_RecomputesStats(t *testing.T) {
	clearCollections(t)
	ownerToken := signTestToken(t, testOwnerID, userRole)
	node := createTestNode(t, ownerToken, true)

	submitTestRating(t, signTestToken(t, "rater-a", userRole), node.ID, 1)
	middleRater := signTestToken(t, "rater-b", userRole)
	middle := submitTestRating(t, middleRater, node.ID, 2)
	submitTestRating(t, signTestToken(t, "rater-c", userRole), node.ID, 3)

	resp, body := doRequest(t, http.MethodDelete, "/api/ratings/"+middle.ID, middleRater, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode, string(body))

	stats := getNodeStats(t, node.ID)
	assert.InDelta(t, 2.0, stats.AverageRating, 1e-9)
	assert.Equal(t, int64(4), stats.TotalRating)
	assert.Equal(t, int64(2), stats.RatingCount)
}

func TestRetractLastRating_ResetsStats(t *testing.T) {
	clearCollections(t)
	ownerToken := signTestToken(t, testOwnerID, userRole)
	node := createTestNode(t, ownerToken, true)

	raterToken := signTestToken(t, testRaterID, userRole)
	rating := submitTestRating(t, raterToken, node.ID, 5)

	resp, _ := doRequest(t, http.MethodDelete, "/api/ratings/"+rating.ID, raterToken, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	stats := getNodeStats(t, node.ID)
	assert.Zero(t, stats.AverageRating)
	assert.Zero(t, stats.TotalRating)
	assert.Zero(t, stats.RatingCount)
}

func TestSubmitRating_DuplicateRaterConflicts(t *testing.T) {
	clearCollections(t)
	ownerToken := signTestToken(t, testOwnerID, userRole)
	node := createTestNode(t, ownerToken, true)

	raterToken := signTestToken(t, testRaterID, userRole)
	submitTestRating(t, raterToken, node.ID, 4)

	resp, _ := doRequest(t, http.MethodPost, "/api/nodes/"+node.ID+"/ratings", raterToken, map[string]interface{}{"score": 2})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	stats := getNodeStats(t, node.ID)
	assert.Equal(t, int64(1), stats.RatingCount)
	assert.Equal(t, int64(4), stats.TotalRating)
}

func TestSubmitRating_NonRatableNodeRejected(t *testing.T) {
	clearCollections(t)
	ownerToken := signTestToken(t, testOwnerID, userRole)
	node := createTestNode(t, ownerToken, false)

	resp, _ := doRequest(t, http.MethodPost, "/api/nodes/"+node.ID+"/ratings", signTestToken(t, testRaterID, userRole), map[string]interface{}{"score": 5})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitRating_InvalidScoreRejected(t *testing.T) {
	clearCollections(t)
	ownerToken := signTestToken(t, testOwnerID, userRole)
	node := createTestNode(t, ownerToken, true)
	raterToken := signTestToken(t, testRaterID, userRole)

	for _, score := range []int32{0, 6} {
		resp, _ := doRequest(t, http.MethodPost, "/api/nodes/"+node.ID+"/ratings", raterToken, map[string]interface{}{"score": score})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "score %d", score)
	}
}

func TestSubmitRating_UnknownNodeNotFound(t *testing.T) {
	clearCollections(t)
	resp, _ := doRequest(t, http.MethodPost, "/api/nodes/"+primitive.NewObjectID().Hex()+"/ratings",
		signTestToken(t, testRaterID, userRole), map[string]interface{}{"score": 3})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRetractRating_Authorization(t *testing.T) {
	clearCollections(t)
	ownerToken := signTestToken(t, testOwnerID, userRole)
	node := createTestNode(t, ownerToken, true)
	rating := submitTestRating(t, signTestToken(t, testRaterID, userRole), node.ID, 3)

	t.Run("stranger is forbidden", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodDelete, "/api/ratings/"+rating.ID, signTestToken(t, "stranger", userRole), nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("admin may retract", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodDelete, "/api/ratings/"+rating.ID, signTestToken(t, testAdminID, adminRole), nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		stats := getNodeStats(t, node.ID)
		assert.Zero(t, stats.RatingCount)
	})

	t.Run("already retracted is not found", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodDelete, "/api/ratings/"+rating.ID, signTestToken(t, testAdminID, adminRole), nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestSetRatable_ReenableRecomputesStaleStats(t *testing.T) {
	clearCollections(t)
	ownerToken := signTestToken(t, testOwnerID, userRole)
	node := createTestNode(t, ownerToken, true)

	submitTestRating(t, signTestToken(t, "rater-a", userRole), node.ID, 5)
	submitTestRating(t, signTestToken(t, "rater-b", userRole), node.ID, 1)

	// Corrupt the stored stats directly; re-enabling the capability must
	// re-derive them from the rating records.
	nodeOID, err := primitive.ObjectIDFromHex(node.ID)
	require.NoError(t, err)
	_, err = testDBClient.Database(testDBName).Collection("nodes").UpdateOne(context.Background(),
		bson.M{"_id": nodeOID},
		bson.M{"$set": bson.M{"average_rating": 99.0, "total_rating": int64(99), "rating_count": int64(99)}})
	require.NoError(t, err)

	resp, _ := doRequest(t, http.MethodPut, "/api/nodes/"+node.ID+"/ratable", ownerToken, map[string]interface{}{"ratable": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doRequest(t, http.MethodPut, "/api/nodes/"+node.ID+"/ratable", ownerToken, map[string]interface{}{"ratable": true})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var updated nodePayload
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.True(t, updated.Ratable)
	assert.InDelta(t, 3.0, updated.AverageRating, 1e-9)
	assert.Equal(t, int64(6), updated.TotalRating)
	assert.Equal(t, int64(2), updated.RatingCount)
}

func TestSetRatable_StrangerForbidden(t *testing.T) {
	clearCollections(t)
	ownerToken := signTestToken(t, testOwnerID, userRole)
	node := createTestNode(t, ownerToken, true)

	resp, _ := doRequest(t, http.MethodPut, "/api/nodes/"+node.ID+"/ratable", signTestToken(t, "stranger", userRole), map[string]interface{}{"ratable": false})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestMutatingEndpoints_RequireAuth(t *testing.T) {
	clearCollections(t)

	resp, _ := doRequest(t, http.MethodPost, "/api/nodes", "", map[string]interface{}{"name": "x", "ratable": true})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodPost, "/api/nodes/"+primitive.NewObjectID().Hex()+"/ratings", "", map[string]interface{}{"score": 3})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodDelete, "/api/ratings/"+primitive.NewObjectID().Hex(), "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestListRatings_Pagination(t *testing.T) {
	clearCollections(t)
	ownerToken := signTestToken(t, testOwnerID, userRole)
	node := createTestNode(t, ownerToken, true)

	for i := 0; i < 5; i++ {
		submitTestRating(t, signTestToken(t, fmt.Sprintf("rater-%d", i), userRole), node.ID, int32(i%5+1))
	}

	resp, body := doRequest(t, http.MethodGet, "/api/nodes/"+node.ID+"/ratings?page=1&limit=2", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page struct {
		Ratings []ratingPayload `json:"ratings"`
		Total   int64           `json:"total"`
		Page    int32           `json:"page"`
		Limit   int32           `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(body, &page))
	assert.Len(t, page.Ratings, 2)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, int32(1), page.Page)
	assert.Equal(t, int32(2), page.Limit)
}

// TestNATSBinding_SubscriberRecomputes exercises the event-driven binding:
// the aggregator is attached to a NATS subscriber instead of being invoked
// inline, and a published rating event must converge the node's stored
// stats.
func TestNATSBinding_SubscriberRecomputes(t *testing.T) {
	clearCollections(t)
	ctx := context.Background()

	subscriber, err := natsAdapter.NewSubscriber(testNatsURL, testAggregator, testLogger, "test-rating-subscriber")
	require.NoError(t, err)
	defer subscriber.Close()
	require.NoError(t, subscriber.Start())

	node, err := domain.NewNode("subscriber target", testOwnerID, true)
	require.NoError(t, err)
	require.NoError(t, testNodeRepo.Create(ctx, node))

	rating, err := domain.NewRating(node.ID, testRaterID, 4)
	require.NoError(t, err)
	require.NoError(t, testRatingRepo.Create(ctx, rating))

	// The record was written behind the usecase's back, so the stored
	// stats are still zero until the event arrives.
	stored, err := testNodeRepo.GetByID(ctx, node.ID)
	require.NoError(t, err)
	require.Zero(t, stored.Stats.RatingCount)

	require.NoError(t, testNatsPub.PublishRatingCreated(ctx, rating))

	require.Eventually(t, func() bool {
		current, err := testNodeRepo.GetByID(ctx, node.ID)
		if err != nil {
			return false
		}
		return current.Stats.RatingCount == 1 && current.Stats.TotalRating == 4
	}, 10*time.Second, 100*time.Millisecond, "subscriber did not recompute stats")

	current, err := testNodeRepo.GetByID(ctx, node.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, current.Stats.AverageRating, 1e-9)
}
