package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Role selects which required settings Validate enforces.
type Role string

const (
	RoleServer Role = "server"
	RoleWorker Role = "worker"
	RoleAdmin  Role = "admin"
)

type Config struct {
	AppName  string
	AppEnv   string
	LogLevel string

	ServerHost string
	ServerPort string

	// Queue
	RedisURL       string
	QueueName      string
	QueueAttempts  int
	QueueRetention time.Duration

	// Session verification for the status endpoints
	SessionSecret string
	SessionCookie string

	// Vector store
	VectorBackend     string
	VectorIndex       string
	PineconeAPIKey    string
	PineconeEnv       string
	PineconeIndexHost string
	DatabaseURL       string
	QdrantHost        string
	QdrantPort        int
	QdrantAPIKey      string

	// Blob store
	BlobBackend       string
	BlobRoot          string
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string

	// Embeddings
	OpenAIAPIKey        string
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingBatchSize  int

	// Worker pool configuration
	WorkerConcurrency int
	ChatTimezone      string

	// Observability
	StatsdAddr     string
	JaegerEndpoint string
}

var defaults = map[string]any{
	"APP_NAME":             "content-server",
	"APP_ENV":              "local",
	"APP_LOG_LEVEL":        "INFO",
	"SERVER_HOST":          "0.0.0.0",
	"SERVER_PORT":          "8080",
	"QUEUE_NAME":           "creators",
	"QUEUE_ATTEMPTS":       1,
	"QUEUE_RETENTION":      "24h",
	"SESSION_COOKIE":       "session",
	"VECTOR_BACKEND":       "pinecone",
	"VECTOR_INDEX":         "creators",
	"QDRANT_PORT":          6334,
	"BLOB_BACKEND":         "s3",
	"BLOB_ROOT":            "./data",
	"S3_REGION":            "us-east-1",
	"EMBEDDING_MODEL":      "text-embedding-ada-002",
	"EMBEDDING_DIMENSIONS": 1536,
	"EMBEDDING_BATCH_SIZE": 64,
	"WORKER_CONCURRENCY":   1,
	"CHAT_TIMEZONE":        "UTC",
}

// Load reads .env (if present) and the process environment. It does not
// check required values; call Validate with the process role for that.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	retention, err := time.ParseDuration(v.GetString("QUEUE_RETENTION"))
	if err != nil {
		return nil, fmt.Errorf("invalid QUEUE_RETENTION: %w", err)
	}

	cfg := &Config{
		AppName:  v.GetString("APP_NAME"),
		AppEnv:   v.GetString("APP_ENV"),
		LogLevel: strings.ToUpper(v.GetString("APP_LOG_LEVEL")),

		ServerHost: v.GetString("SERVER_HOST"),
		ServerPort: v.GetString("SERVER_PORT"),

		RedisURL:       v.GetString("REDIS_URL"),
		QueueName:      v.GetString("QUEUE_NAME"),
		QueueAttempts:  v.GetInt("QUEUE_ATTEMPTS"),
		QueueRetention: retention,

		SessionSecret: v.GetString("SESSION_SECRET"),
		SessionCookie: v.GetString("SESSION_COOKIE"),

		VectorBackend:     strings.ToLower(v.GetString("VECTOR_BACKEND")),
		VectorIndex:       v.GetString("VECTOR_INDEX"),
		PineconeAPIKey:    v.GetString("PINECONE_API_KEY"),
		PineconeEnv:       v.GetString("PINECONE_API_ENV"),
		PineconeIndexHost: v.GetString("PINECONE_INDEX_HOST"),
		DatabaseURL:       v.GetString("DATABASE_URL"),
		QdrantHost:        v.GetString("QDRANT_HOST"),
		QdrantPort:        v.GetInt("QDRANT_PORT"),
		QdrantAPIKey:      v.GetString("QDRANT_API_KEY"),

		BlobBackend:       strings.ToLower(v.GetString("BLOB_BACKEND")),
		BlobRoot:          v.GetString("BLOB_ROOT"),
		S3Endpoint:        v.GetString("S3_ENDPOINT"),
		S3Region:          v.GetString("S3_REGION"),
		S3AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),

		OpenAIAPIKey:        v.GetString("OPENAI_API_KEY"),
		EmbeddingModel:      v.GetString("EMBEDDING_MODEL"),
		EmbeddingDimensions: v.GetInt("EMBEDDING_DIMENSIONS"),
		EmbeddingBatchSize:  v.GetInt("EMBEDDING_BATCH_SIZE"),

		WorkerConcurrency: v.GetInt("WORKER_CONCURRENCY"),
		ChatTimezone:      v.GetString("CHAT_TIMEZONE"),

		StatsdAddr:     v.GetString("STATSD_ADDR"),
		JaegerEndpoint: v.GetString("JAEGER_ENDPOINT"),
	}

	return cfg, nil
}

// Validate checks the settings a process of the given role cannot start without.
func (c *Config) Validate(role Role) error {
	var missing []string
	require := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	if role != RoleAdmin {
		require("REDIS_URL", c.RedisURL)
	}
	if role == RoleServer {
		require("SESSION_SECRET", c.SessionSecret)
	}

	if role == RoleWorker || role == RoleAdmin {
		switch c.VectorBackend {
		case "pinecone":
			require("PINECONE_API_KEY", c.PineconeAPIKey)
			if c.PineconeIndexHost == "" {
				require("VECTOR_INDEX", c.VectorIndex)
			}
		case "pgvector":
			require("DATABASE_URL", c.DatabaseURL)
		case "qdrant":
			require("QDRANT_HOST", c.QdrantHost)
		case "memory":
		default:
			return fmt.Errorf("unknown VECTOR_BACKEND %q", c.VectorBackend)
		}
	}

	if role == RoleWorker {
		require("OPENAI_API_KEY", c.OpenAIAPIKey)
		switch c.BlobBackend {
		case "s3":
			require("S3_ENDPOINT", c.S3Endpoint)
			require("S3_ACCESS_KEY_ID", c.S3AccessKeyID)
			require("S3_SECRET_ACCESS_KEY", c.S3SecretAccessKey)
		case "local":
			require("BLOB_ROOT", c.BlobRoot)
		default:
			return fmt.Errorf("unknown BLOB_BACKEND %q", c.BlobBackend)
		}
		if _, err := time.LoadLocation(c.ChatTimezone); err != nil {
			return fmt.Errorf("invalid CHAT_TIMEZONE: %w", err)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%s is required", strings.Join(missing, ", "))
	}

	if c.WorkerConcurrency < 1 {
		c.WorkerConcurrency = 1
	}
	if c.QueueAttempts < 1 {
		c.QueueAttempts = 1
	}
	if c.EmbeddingBatchSize < 1 {
		c.EmbeddingBatchSize = 1
	}

	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
}
