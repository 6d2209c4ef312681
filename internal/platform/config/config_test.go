package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "repogator:webhook_events", cfg.Redis.QueueName)
	assert.Equal(t, "https://api.github.com", cfg.GitHub.BaseURL)
	assert.Equal(t, "text-embedding-3-small", cfg.Knowledge.EmbeddingModel)
	assert.Equal(t, time.Second, cfg.Worker.PopTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Worker.SweepAge)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("REPOGATOR_ADDR", ":9090")
	t.Setenv("REPOGATOR_QUEUE_NAME", "custom:queue")
	t.Setenv("REPOGATOR_DB_MAX_OPEN_CONNS", "25")
	t.Setenv("REPOGATOR_WORKER_POP_TIMEOUT", "2s")
	t.Setenv("REPOGATOR_WEBHOOK_SECRET", "s3cret")

	cfg := FromEnv()

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "custom:queue", cfg.Redis.QueueName)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 2*time.Second, cfg.Worker.PopTimeout)
	assert.Equal(t, "s3cret", cfg.Server.WebhookSecret)
}

func TestFromEnvBadValuesFallBack(t *testing.T) {
	t.Setenv("REPOGATOR_DB_MAX_OPEN_CONNS", "lots")
	t.Setenv("REPOGATOR_WORKER_POP_TIMEOUT", "soon")

	cfg := FromEnv()

	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, time.Second, cfg.Worker.PopTimeout)
}
