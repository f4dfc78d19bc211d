package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("ADDR", "")
		t.Setenv("DATABASE_URL", "")
		t.Setenv("KAFKA_BROKERS", "")
		t.Setenv("JWT_TTL", "")

		cfg := FromEnv()
		assert.Equal(t, ":8080", cfg.Addr)
		assert.False(t, cfg.UsesPostgres())
		assert.Empty(t, cfg.Kafka.Brokers)
		assert.Equal(t, "registry.audit", cfg.Kafka.AuditTopic)
		assert.Equal(t, 8*time.Hour, cfg.JWTTTL)
		assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
		assert.NotEmpty(t, cfg.JWTSigningKey)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("ADDR", ":9090")
		t.Setenv("DATABASE_URL", "postgres://localhost/registry")
		t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
		t.Setenv("LOG_LEVEL", "debug")
		t.Setenv("TX_TIMEOUT", "2s")
		t.Setenv("LOGIN_RATE_PER_MINUTE", "3")

		cfg := FromEnv()
		assert.Equal(t, ":9090", cfg.Addr)
		assert.True(t, cfg.UsesPostgres())
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
		assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
		assert.Equal(t, 2*time.Second, cfg.TxTimeout)
		assert.Equal(t, 3, cfg.LoginRatePerMinute)
	})

	t.Run("malformed values fall back", func(t *testing.T) {
		t.Setenv("TX_TIMEOUT", "soon")
		t.Setenv("LOG_LEVEL", "loud")
		cfg := FromEnv()
		assert.Equal(t, 5*time.Second, cfg.TxTimeout)
		assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	})
}
