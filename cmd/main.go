package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpAdapter "github.com/content-platform/rating-service/internal/adapter/http"
	natsAdapter "github.com/content-platform/rating-service/internal/adapter/messaging/nats"
	cacheRepo "github.com/content-platform/rating-service/internal/adapter/repository/cache"
	mongoRepo "github.com/content-platform/rating-service/internal/adapter/repository/mongodb"

	"github.com/content-platform/rating-service/internal/aggregator"
	"github.com/content-platform/rating-service/internal/config"
	"github.com/content-platform/rating-service/internal/domain"
	"github.com/content-platform/rating-service/internal/platform/logger"
	"github.com/content-platform/rating-service/internal/platform/metrics"
	"github.com/content-platform/rating-service/internal/platform/tracer"
	"github.com/content-platform/rating-service/internal/usecase"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const serviceName = "rating-service"

func main() {
	// Load .env file (optional, for local development).
	if err := godotenv.Load(); err != nil {
		fmt.Printf("INFO: .env file not found or error loading: %v. Relying on OS environment variables.\n", err)
	}

	appLogger := logger.NewLogger()
	appLogger.Info("Application starting...", zap.String("service_name", serviceName))

	cfg, err := config.LoadConfig(appLogger)
	if err != nil {
		appLogger.Fatal("Failed to load configuration", zap.Error(err))
	}
	appLogger.Info("Configuration loaded successfully",
		zap.String("http_port", cfg.HTTPPort),
		zap.Bool("mongo_uri_set", cfg.MongoURI != ""),
		zap.String("nats_url", cfg.NATSURL),
		zap.String("rating_binding", cfg.RatingBinding),
		zap.String("prometheus_port", cfg.PrometheusMetricsPort),
	)

	// OpenTelemetry tracer.
	if cfg.OTExporterOTLPEndpoint != "" {
		tp := tracer.InitTracer(serviceName, cfg.OTExporterOTLPEndpoint, appLogger)
		defer func() {
			appLogger.Info("Shutting down tracer provider...")
			ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			if err := tp.Shutdown(ctxShutdown); err != nil {
				appLogger.Error("Failed to shutdown tracer provider", zap.Error(err))
			}
		}()
		appLogger.Info("OpenTelemetry Tracer initialized.")
	} else {
		appLogger.Info("OpenTelemetry Tracer not initialized (OTEL_EXPORTER_OTLP_ENDPOINT not set).")
	}

	// MongoDB.
	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		appLogger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		appLogger.Info("Disconnecting from MongoDB...")
		if err = mongoClient.Disconnect(context.Background()); err != nil {
			appLogger.Error("Error disconnecting from MongoDB", zap.Error(err))
		}
	}()
	ctxPingMongo, cancelPingMongo := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPingMongo()
	if err = mongoClient.Ping(ctxPingMongo, nil); err != nil {
		appLogger.Fatal("Failed to ping MongoDB", zap.Error(err))
	}
	appLogger.Info("Successfully connected and pinged MongoDB.")
	db := mongoClient.Database(cfg.MongoDatabase)

	// Redis stats cache (optional).
	var statsCache domain.StatsCache
	if cfg.RedisAddr != "" {
		redisCache, err := cacheRepo.NewStatsCache(cfg.RedisAddr)
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer redisCache.Close()
		statsCache = redisCache
		appLogger.Info("Redis stats cache initialized.", zap.String("addr", cfg.RedisAddr))
	} else {
		appLogger.Info("Redis stats cache disabled (REDIS_ADDR not set).")
	}

	// NATS publisher.
	natsPublisher, err := natsAdapter.NewPublisher(cfg.NATSURL, appLogger, serviceName)
	if err != nil {
		appLogger.Fatal("Failed to initialize NATS publisher", zap.Error(err))
	}
	defer natsPublisher.Close()
	appLogger.Info("NATS Publisher initialized.")

	// Metrics.
	metricsManager := metrics.NewMetricsManager("rating_service")

	// Repositories.
	nodeRepo, err := mongoRepo.NewNodeRepository(db, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize NodeRepository", zap.Error(err))
	}
	ratingRepo, err := mongoRepo.NewRatingRepository(db, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize RatingRepository", zap.Error(err))
	}
	appLogger.Info("Repositories initialized.")

	// Aggregator and its binding. In inline mode the submission workflow
	// invokes the aggregator directly; in nats mode a subscriber drives it
	// from the published rating events instead.
	agg := aggregator.New(nodeRepo, ratingRepo, statsCache, metricsManager, appLogger)

	var inlineBehavior domain.RatingBehavior
	if cfg.RatingBinding == config.BindingInline {
		inlineBehavior = agg
		appLogger.Info("Rating behavior bound inline.")
	} else {
		natsSubscriber, err := natsAdapter.NewSubscriber(cfg.NATSURL, agg, appLogger, serviceName)
		if err != nil {
			appLogger.Fatal("Failed to initialize NATS subscriber", zap.Error(err))
		}
		defer natsSubscriber.Close()
		if err := natsSubscriber.Start(); err != nil {
			appLogger.Fatal("Failed to start NATS subscriber", zap.Error(err))
		}
		appLogger.Info("Rating behavior bound via NATS subscriber.")
	}

	// Usecases.
	ratingUsecase := usecase.NewRatingUsecase(nodeRepo, ratingRepo, inlineBehavior, statsCache, natsPublisher, metricsManager, appLogger)
	nodeUsecase := usecase.NewNodeUsecase(nodeRepo, agg, appLogger)
	appLogger.Info("Usecases initialized.")

	// HTTP server.
	handler := httpAdapter.NewHandler(nodeUsecase, ratingUsecase, appLogger)
	router := httpAdapter.NewRouter(handler, cfg.JWTSecret, metricsManager, appLogger)

	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}
	go func() {
		appLogger.Info("Starting HTTP server", zap.String("port", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Prometheus metrics server.
	if cfg.PrometheusMetricsPort != "" {
		go func() {
			if err := metrics.StartMetricsServer(cfg.PrometheusMetricsPort, appLogger, metricsManager.Registry); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.Error("Prometheus metrics server failed", zap.Error(err))
			}
		}()
	}

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	appLogger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		appLogger.Error("HTTP server shutdown error", zap.Error(err))
	}
	appLogger.Info("HTTP server stopped.")

	appLogger.Info("Application shutting down...")
}
