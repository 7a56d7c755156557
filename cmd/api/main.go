package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/docgraph/backend/internal/api/handlers"
	"github.com/docgraph/backend/internal/cache/redis"
	"github.com/docgraph/backend/internal/feedback"
	"github.com/docgraph/backend/internal/graph/neo4j"
	"github.com/docgraph/backend/internal/learning"
	"github.com/docgraph/backend/internal/metrics"
	"github.com/docgraph/backend/internal/middleware/ratelimit"
	"github.com/docgraph/backend/internal/middleware/security"
	"github.com/docgraph/backend/internal/middleware/validation"
	"github.com/docgraph/backend/pkg/config"
	appLogger "github.com/docgraph/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting DocGraph feedback learning server")

	metrics.Init()

	feedbackStore, err := feedback.NewStore(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to open feedback store", zap.Error(err))
	}
	defer feedbackStore.Close()

	err = feedbackStore.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize feedback schema", zap.Error(err))
	}

	graphStore, err := neo4j.NewClient(
		cfg.Neo4j.URI,
		cfg.Neo4j.Username,
		cfg.Neo4j.Password,
		cfg.Neo4j.Database,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Neo4j client", zap.Error(err))
	}
	defer graphStore.Close(context.Background())

	err = graphStore.InitIndexes(context.Background())
	if err != nil {
		appLogger.Warn("Failed to initialize graph indexes", zap.Error(err))
	}

	var cache *redis.Client
	if cfg.Redis.Enabled {
		cache, err = redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLSec)*time.Second,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, running without cache", zap.Error(err))
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	engine := learning.NewEngine(feedbackStore, graphStore, cfg.Learning)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Session-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	limiter := ratelimit.New(ratelimit.Config{
		Logger: appLogger.GetLogger(),
	})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{
		MaxBodySize: cfg.Server.BodyLimit,
		Logger:      appLogger.GetLogger(),
	}))

	feedbackHandler := handlers.NewFeedbackHandler(engine, feedbackStore, cache)
	learningHandler := handlers.NewLearningHandler(engine, cache)
	graphHandler := handlers.NewGraphHandler(engine, cache)

	api := app.Group("/api/v1")

	api.Post("/feedback", feedbackHandler.RecordFeedback)
	api.Get("/feedback/stats", feedbackHandler.GetStatistics)
	api.Get("/feedback/quality", feedbackHandler.GetSourceQuality)
	api.Get("/feedback/highlights", feedbackHandler.GetPositiveHighlights)

	api.Post("/learning/trigger", learningHandler.TriggerLearning)
	api.Post("/learning/prune", learningHandler.PruneRelationships)
	api.Get("/learning/stats", learningHandler.GetStatistics)

	api.Get("/graph/related", graphHandler.GetRelatedDocuments)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
