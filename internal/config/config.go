package config

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	DatabaseURL    string `envconfig:"DATABASE_URL" required:"true"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"migrations"`

	SentryDSN string `envconfig:"SENTRY_DSN"`

	OpenAIAPIKey       string `envconfig:"OPENAI_API_KEY"`
	EmbeddingModel     string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimension int    `envconfig:"EMBEDDING_DIMENSION" default:"1536"`

	// Embedding throughput bounds are global across all sources: the
	// provider's rate limit is one shared resource, not per-source.
	EmbedBatchSize   int     `envconfig:"EMBED_BATCH_SIZE" default:"50"`
	EmbedConcurrency int     `envconfig:"EMBED_CONCURRENCY" default:"4"`
	EmbedRateLimit   float64 `envconfig:"EMBED_RATE_LIMIT" default:"5"`
	EmbedRateBurst   int     `envconfig:"EMBED_RATE_BURST" default:"10"`
	EmbedCacheSize   int     `envconfig:"EMBED_CACHE_SIZE" default:"10000"`

	IndexInFlightLimit int    `envconfig:"INDEX_INFLIGHT_LIMIT" default:"64"`
	TraverseMaxDepth   int    `envconfig:"TRAVERSE_MAX_DEPTH" default:"5"`
	ContextTokenBudget int    `envconfig:"CONTEXT_TOKEN_BUDGET" default:"4000"`
	FullReindexCron    string `envconfig:"FULL_REINDEX_CRON" default:"0 3 * * *"`

	// S3 credentials for knowledge page sources
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	// Bootstrap: create initial organization and API key on startup
	InitOrgName string `envconfig:"INIT_ORG_NAME"`
	InitAPIKey  string `envconfig:"INIT_API_KEY"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("TESSERA", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}
