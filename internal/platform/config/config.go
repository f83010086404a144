package config

import (
	"os"
	"strings"
	"time"
)

// Config captures everything the server needs from the environment so main
// stays lean.
type Config struct {
	Addr string

	PostgresURL string
	RedisURL    string

	KafkaBrokers []string
	AuditTopic   string

	ExtractionURL   string
	ExtractionToken string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	JWTSigningKey string

	// SessionTTL bounds the session-scoped draft and renewal-queue keys.
	// Drafts hold personal data, so they must not outlive a working session.
	SessionTTL time.Duration
}

// FromEnv builds a Config from environment variables, applying development
// defaults where a value is optional.
func FromEnv() Config {
	cfg := Config{
		Addr:            envOr("POLICYDESK_ADDR", ":8080"),
		PostgresURL:     os.Getenv("POSTGRES_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		AuditTopic:      envOr("AUDIT_TOPIC", "policydesk.audit"),
		ExtractionURL:   os.Getenv("EXTRACTION_URL"),
		ExtractionToken: os.Getenv("EXTRACTION_TOKEN"),
		MinioEndpoint:   os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:  os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:  os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:     envOr("MINIO_BUCKET", "policy-documents"),
		MinioUseSSL:     os.Getenv("MINIO_USE_SSL") == "true",
		JWTSigningKey:   envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		SessionTTL:      12 * time.Hour,
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	if ttl := os.Getenv("SESSION_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil && d > 0 {
			cfg.SessionTTL = d
		}
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
