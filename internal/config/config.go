package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI string
	DBName   string
	Port     string
	GinMode  string

	CORSOrigins []string

	// Redis (asynq queue, index progress/lock, rate limiting)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Gemini
	GeminiAPIKey          string
	GeminiModel           string
	GeminiChitchatModel   string
	GoogleEmbeddingsModel string
	AIRequestTimeout      time.Duration

	// File storage
	FileStorageDir string
	MaxFileSize    int64
	StorageQuota   int64

	// Statistics table and intents
	StatisticsFile string
	IntentsFile    string

	// Vector index
	VectorIndexDir string
	RetrievalTopK  int

	// Chunking / indexing
	MaxChunkSize   int
	ChunkOverlap   int
	EmbedBatchSize int

	// Response cache
	CacheTTL      time.Duration
	CacheMaxMB    float64
	CacheSweepGap time.Duration

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Tracing
	OTLPEndpoint string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/village_chatbot"),
		DBName:   getEnv("DB_NAME", "village_chatbot"),
		Port:     getEnv("PORT", "3000"),
		GinMode:  getEnv("GIN_MODE", "debug"),

		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiChitchatModel:   getEnv("GEMINI_CHITCHAT_MODEL", "gemini-2.0-flash-lite"),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		AIRequestTimeout:      getEnvDuration("AI_REQUEST_TIMEOUT", 60*time.Second),

		FileStorageDir: getEnv("FILE_STORAGE_DIR", "./data"),
		MaxFileSize:    getEnvInt64("MAX_FILE_SIZE", 104857600),      // 100MB per upload
		StorageQuota:   getEnvInt64("STORAGE_QUOTA", 1024*1024*1024), // 1GB total corpus

		StatisticsFile: getEnv("STATISTICS_FILE", "./data/statistik_desa.xlsx"),
		IntentsFile:    getEnv("INTENTS_FILE", "./intents.json"),

		VectorIndexDir: getEnv("VECTOR_INDEX_DIR", "./vector_index"),
		RetrievalTopK:  getEnvInt("RETRIEVAL_TOP_K", 10),

		MaxChunkSize:   getEnvInt("MAX_CHUNK_SIZE", 1000),
		ChunkOverlap:   getEnvInt("CHUNK_OVERLAP", 200),
		EmbedBatchSize: getEnvInt("EMBED_BATCH_SIZE", 25),

		CacheTTL:      getEnvDuration("CACHE_TTL", 5*time.Minute),
		CacheMaxMB:    getEnvFloat64("CACHE_MAX_MB", 50),
		CacheSweepGap: getEnvDuration("CACHE_SWEEP_INTERVAL", 10*time.Minute),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", "localhost:4317"),
	}

	// Validate required fields
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	if cfg.ChunkOverlap >= cfg.MaxChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than MAX_CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.MaxChunkSize)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
