package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"village-chatbot-backend/internal/ai"
	"village-chatbot-backend/internal/config"
	"village-chatbot-backend/internal/logger"
	"village-chatbot-backend/internal/telemetry"
	"village-chatbot-backend/internal/vectorstore"
	"village-chatbot-backend/middleware"
	"village-chatbot-backend/routes"
	"village-chatbot-backend/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Initialize tracing
	shutdownTracer, err := telemetry.InitTracer("village-chatbot-api", cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
	} else {
		defer shutdownTracer()
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	// Connect to Redis (progress, lock, rate limiting)
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	// Asynq client for enqueueing indexing runs
	queueClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer queueClient.Close()

	// Gemini client and query embedder
	geminiClient, err := ai.NewGeminiClient(cfg.GeminiAPIKey, "free", cfg.AIRequestTimeout, metrics)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer geminiClient.Close()

	embedder := ai.NewEmbeddingProvider(cfg.GeminiAPIKey, cfg.GoogleEmbeddingsModel)
	defer embedder.Close()

	// Vector index snapshot. A missing index file is fine: the chatbot
	// starts up and reports the knowledge base as not ready.
	holder := vectorstore.NewHolder(cfg.VectorIndexDir)
	if err := holder.Reload(); err != nil {
		logger.Warn("Vector index not loaded at startup", "error", err)
	} else {
		logger.Info("Vector index loaded", "chunks", holder.Get().Count())
	}

	// Statistics table and intents
	statistics := services.NewStatisticsService(cfg.StatisticsFile)
	if err := statistics.Load(); err != nil {
		logger.Warn("Statistics table not loaded at startup", "error", err)
	}

	intents := services.NewIntentService()
	if err := intents.Load(cfg.IntentsFile); err != nil {
		logger.Warn("Intents not loaded at startup", "error", err)
	}

	// Services
	registry := services.NewDocumentRegistry(db)
	cache := services.NewResponseCache(db, cfg.CacheTTL, cfg.CacheMaxMB)
	progress := services.NewProgressStore(rdb)
	dataQuery := services.NewDataQueryService(geminiClient, statistics, cfg.GeminiModel)
	router := services.NewRouterService(geminiClient, embedder, holder, intents, cache, dataQuery, metrics, services.RouterConfig{
		RouterModel:   cfg.GeminiModel,
		ChitchatModel: cfg.GeminiChitchatModel,
		RetrievalTopK: cfg.RetrievalTopK,
	})

	// Background jobs: index watcher and cache sweep
	scheduler := services.NewScheduler(progress, holder, cache)
	if err := scheduler.Start(cfg.CacheSweepGap); err != nil {
		log.Fatal("Failed to start scheduler:", err)
	}
	defer scheduler.Stop()

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Logger())
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("village-chatbot-api"))
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(middleware.RateLimitMiddleware(rdb, cfg))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Requested-With"}
	corsConfig.AllowCredentials = true
	engine.Use(cors.New(corsConfig))

	// Health check endpoint
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	// Setup routes
	chatHandler := routes.NewChatHandler(router)
	adminHandler := routes.NewAdminHandler(cfg, registry, cache, statistics, progress, holder, queueClient)
	routes.SetupChatRoutes(engine, chatHandler)
	routes.SetupAdminRoutes(engine, adminHandler)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
