package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NOTIFICATION_LIMIT", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("POSTGRES_MAX_OPEN_CONNS", "")
	t.Setenv("CONNECT_TIMEOUT", "")

	cfg := Load()
	assert.Equal(t, 30, cfg.NotificationLimit)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "study-responses", cfg.ResponsesTopic)
	assert.Equal(t, 5*time.Millisecond, cfg.PVTTickInterval)
	assert.Equal(t, 10, cfg.PostgresMaxOpen)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("NOTIFICATION_LIMIT", "12")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("PVT_TICK_INTERVAL", "20ms")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()
	assert.Equal(t, 12, cfg.NotificationLimit)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 20*time.Millisecond, cfg.PVTTickInterval)
	assert.Equal(t, 0, cfg.RedisDB)
}
