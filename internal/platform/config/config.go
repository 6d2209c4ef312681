package config

import (
	"os"
	"strconv"
	"time"
)

// Config aggregates all runtime configuration. Built once in main from
// environment variables so the rest of the code never reads the environment.
type Config struct {
	Server    Server
	Database  Database
	Redis     Redis
	GitHub    GitHub
	Knowledge Knowledge
	Worker    Worker
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	LogLevel      string
	WebhookSecret string
}

// Database captures the relational store connection settings.
type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Redis captures queue connection settings.
type Redis struct {
	URL          string
	QueueName    string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// GitHub captures outbound provider API settings.
type GitHub struct {
	Token   string
	BaseURL string
}

// Knowledge captures retrieval-store and embedding collaborator settings.
type Knowledge struct {
	BaseURL        string
	EmbeddingURL   string
	EmbeddingKey   string
	EmbeddingModel string
}

// Worker captures queue consumer tuning.
type Worker struct {
	PopTimeout    time.Duration
	StopGrace     time.Duration
	SweepInterval time.Duration
	SweepAge      time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:          envString("REPOGATOR_ADDR", ":8080"),
			LogLevel:      envString("REPOGATOR_LOG_LEVEL", "info"),
			WebhookSecret: os.Getenv("REPOGATOR_WEBHOOK_SECRET"),
		},
		Database: Database{
			URL:             os.Getenv("REPOGATOR_DATABASE_URL"),
			MaxOpenConns:    envInt("REPOGATOR_DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("REPOGATOR_DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("REPOGATOR_DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: Redis{
			URL:          envString("REPOGATOR_REDIS_URL", "redis://localhost:6379"),
			QueueName:    envString("REPOGATOR_QUEUE_NAME", "repogator:webhook_events"),
			PoolSize:     envInt("REPOGATOR_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REPOGATOR_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REPOGATOR_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REPOGATOR_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REPOGATOR_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		GitHub: GitHub{
			Token:   os.Getenv("REPOGATOR_GITHUB_TOKEN"),
			BaseURL: envString("REPOGATOR_GITHUB_BASE_URL", "https://api.github.com"),
		},
		Knowledge: Knowledge{
			BaseURL:        envString("REPOGATOR_KNOWLEDGE_URL", "http://localhost:8001"),
			EmbeddingURL:   envString("REPOGATOR_EMBEDDING_URL", "https://api.openai.com/v1"),
			EmbeddingKey:   os.Getenv("REPOGATOR_EMBEDDING_API_KEY"),
			EmbeddingModel: envString("REPOGATOR_EMBEDDING_MODEL", "text-embedding-3-small"),
		},
		Worker: Worker{
			PopTimeout:    envDuration("REPOGATOR_WORKER_POP_TIMEOUT", time.Second),
			StopGrace:     envDuration("REPOGATOR_WORKER_STOP_GRACE", 5*time.Second),
			SweepInterval: envDuration("REPOGATOR_SWEEP_INTERVAL", 5*time.Minute),
			SweepAge:      envDuration("REPOGATOR_SWEEP_AGE", 30*time.Minute),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
