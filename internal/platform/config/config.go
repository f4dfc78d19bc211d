package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	liststrings "unionregistry/pkg/platform/strings"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	Environment   string
	LogLevel      slog.Level
	DatabaseURL   string
	AdminToken    string
	JWTSigningKey string
	JWTTTL        time.Duration
	TxTimeout     time.Duration
	// LoginRatePerMinute bounds login attempts per username.
	LoginRatePerMinute     int
	BootstrapAdminPassword string
	OTLPEndpoint           string
	Redis                  RedisConfig
	Kafka                  KafkaConfig
}

// RedisConfig configures the dealer cache. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CacheTTL     time.Duration
}

// KafkaConfig configures the audit outbox relay. No brokers disables it.
type KafkaConfig struct {
	Brokers      []string
	AuditTopic   string
	PollInterval time.Duration
}

// UsesPostgres reports whether a database is configured.
func (s Server) UsesPostgres() bool {
	return s.DatabaseURL != ""
}

// IsProduction reports whether the server runs in production.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:                   envOr("ADDR", ":8080"),
		Environment:            envOr("ENVIRONMENT", "development"),
		LogLevel:               parseLevel(os.Getenv("LOG_LEVEL")),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		AdminToken:             os.Getenv("ADMIN_TOKEN"),
		JWTSigningKey:          jwtSigningKey,
		JWTTTL:                 envDuration("JWT_TTL", 8*time.Hour),
		TxTimeout:              envDuration("TX_TIMEOUT", 5*time.Second),
		LoginRatePerMinute:     envInt("LOGIN_RATE_PER_MINUTE", 10),
		BootstrapAdminPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
		OTLPEndpoint:           os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			CacheTTL:     envDuration("DEALER_CACHE_TTL", 10*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:      liststrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic:   envOr("AUDIT_TOPIC", "registry.audit"),
			PollInterval: envDuration("AUDIT_RELAY_INTERVAL", 2*time.Second),
		},
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
