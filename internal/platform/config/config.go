package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures the process-level configuration for the issuance pipeline.
type Server struct {
	Addr string

	// Aggregator tuning.
	ProviderTimeout   time.Duration // Per provider call (default 30s)
	InterRequestDelay time.Duration // Between same-provider batch calls (default 100ms)
	CacheTTL          time.Duration // Default response cache TTL
	RefreshThreshold  float64       // Fraction of TTL after which a cache entry is stale

	// Batch issuance tuning.
	MaxBatchConcurrency int

	// Optional backends. Empty = in-memory fallbacks.
	RedisURL     string
	DatabaseURL  string
	KafkaBrokers string

	// TracingEnabled emits aggregator spans through the process-global
	// OpenTelemetry tracer provider.
	TracingEnabled bool

	// Issuer identity for proof attachment.
	IssuerDID     string
	SigningKeyPEM string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:                getEnv("ATTESTIA_ADDR", ":8080"),
		ProviderTimeout:     getDuration("PROVIDER_TIMEOUT", 30*time.Second),
		InterRequestDelay:   getDuration("INTER_REQUEST_DELAY", 100*time.Millisecond),
		CacheTTL:            getDuration("RESPONSE_CACHE_TTL", 5*time.Minute),
		RefreshThreshold:    getFloat("CACHE_REFRESH_THRESHOLD", 0.8),
		MaxBatchConcurrency: getInt("MAX_BATCH_CONCURRENCY", 5),
		RedisURL:            os.Getenv("REDIS_URL"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		KafkaBrokers:        os.Getenv("KAFKA_BROKERS"),
		TracingEnabled:      getBool("TRACING_ENABLED", false),
		IssuerDID:           getEnv("ISSUER_DID", "did:attestia:issuer"),
		SigningKeyPEM:       os.Getenv("SIGNING_KEY_PEM"),
	}
	if cfg.RefreshThreshold <= 0 || cfg.RefreshThreshold > 1 {
		cfg.RefreshThreshold = 0.8
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
