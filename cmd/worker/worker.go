package main

import (
	"context"
	"log"

	"village-chatbot-backend/internal/ai"
	"village-chatbot-backend/internal/config"
	"village-chatbot-backend/internal/logger"
	"village-chatbot-backend/internal/queue"
	"village-chatbot-backend/internal/telemetry"
	"village-chatbot-backend/services"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("village-chatbot-worker", cfg.OTLPEndpoint)
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
	defer mongoClient.Disconnect(context.Background())
	db := mongoClient.Database(cfg.DBName)

	// Connect to Redis (progress, lock)
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	embedder := ai.NewEmbeddingProvider(cfg.GeminiAPIKey, cfg.GoogleEmbeddingsModel)
	defer embedder.Close()

	registry := services.NewDocumentRegistry(db)
	progress := services.NewProgressStore(rdb)
	splitter := services.NewTextSplitter(cfg.MaxChunkSize, cfg.ChunkOverlap)
	indexer := services.NewIndexer(registry, embedder, progress, splitter, cfg.VectorIndexDir, cfg.EmbedBatchSize, metrics)

	// Redis options for Asynq
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	// Create Asynq server
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 20,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	// Create task processor
	processor := queue.NewTaskProcessor(indexer, progress)

	// Create mux and register handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskRunIndexing, processor.ProcessIndexRun)

	logger.Info("Starting indexing worker",
		"concurrency", 20,
		"redis", redisOpt.Addr,
	)

	if err := server.Run(mux); err != nil {
		log.Fatal("Worker stopped:", err)
	}
}
