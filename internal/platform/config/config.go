package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration so main stays lean.
type Server struct {
	Addr                string
	DatabaseURL         string
	MigrationsDir       string
	JWTSigningKey       string
	KafkaBrokers        []string
	LedgerTopic         string
	Redis               RedisConfig
	SimilarityThreshold float64
}

// RedisConfig holds connection settings for the optional chain-head cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultSimilarityThreshold is the identity-matching acceptance ratio used
// when a call site does not tune its own. False merges are worse than
// duplicate identities, so it stays high.
const DefaultSimilarityThreshold = 0.8

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("DOCKET_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	migrationsDir := os.Getenv("DOCKET_MIGRATIONS_DIR")
	if migrationsDir == "" {
		migrationsDir = "migrations"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	topic := os.Getenv("DOCKET_LEDGER_TOPIC")
	if topic == "" {
		topic = "docket.ledger.entries"
	}

	var brokers []string
	if raw := os.Getenv("DOCKET_KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}

	threshold := DefaultSimilarityThreshold
	if raw := os.Getenv("DOCKET_SIMILARITY_THRESHOLD"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed > 0 && parsed <= 1 {
			threshold = parsed
		}
	}

	return Server{
		Addr:                addr,
		DatabaseURL:         os.Getenv("DOCKET_DATABASE_URL"),
		MigrationsDir:       migrationsDir,
		JWTSigningKey:       jwtSigningKey,
		KafkaBrokers:        brokers,
		LedgerTopic:         topic,
		Redis:               redisFromEnv(),
		SimilarityThreshold: threshold,
	}
}

func redisFromEnv() RedisConfig {
	return RedisConfig{
		URL:          os.Getenv("DOCKET_REDIS_URL"),
		PoolSize:     intFromEnv("DOCKET_REDIS_POOL_SIZE", 10),
		MinIdleConns: intFromEnv("DOCKET_REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func intFromEnv(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
