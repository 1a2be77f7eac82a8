// Package config loads environment configuration with fail-fast
// validation at startup. A missing optional source key disables that
// source; missing required settings abort boot.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/bussola-ai/bussola/pkg/database"
)

// Config is the full runtime configuration.
type Config struct {
	Environment string `validate:"required,oneof=development staging production"`
	Port        int    `validate:"required,min=1,max=65535"`

	Database database.Config

	// LLM provider.
	AnthropicAPIKey string  `validate:"required"`
	LLMModelCheap   string  `validate:"required"`
	LLMModelMid     string  `validate:"required"`
	LLMModelPremium string  `validate:"required"`
	LLMRatePerSec   float64 `validate:"gte=0"`

	// Optional per-source keys. Empty disables the source.
	RegistryAPIKey  string
	PlacesAPIKey    string
	PeopleAPIKey    string
	LinkedInAPIKey  string

	// Event stream.
	AllowedOrigins []string

	// Quotas and retention.
	DailySubmissionQuota int           `validate:"gte=0"`
	SessionTTL           time.Duration `validate:"gt=0"`
	EventRetention       time.Duration `validate:"gt=0"`

	// Worker pool.
	WorkerCount       int           `validate:"min=1,max=32"`
	WorkerPollEvery   time.Duration `validate:"gt=0"`
	OrphanStaleAfter  time.Duration `validate:"gt=0"`
	CleanupSweepEvery time.Duration `validate:"gt=0"`
}

// Load reads .env (when present), the process environment, validates,
// and fails fast on anything unusable.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Could not load .env file", "error", err)
	}

	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		Port:        getEnvInt("PORT", 8080),

		Database: database.Config{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "bussola"),
			Password:        os.Getenv("DB_PASSWORD"),
			Database:        getEnv("DB_NAME", "bussola"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		},

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		LLMModelCheap:   getEnv("LLM_MODEL_CHEAP", "claude-3-5-haiku-latest"),
		LLMModelMid:     getEnv("LLM_MODEL_MID", "claude-sonnet-4-20250514"),
		LLMModelPremium: getEnv("LLM_MODEL_PREMIUM", "claude-opus-4-20250514"),
		LLMRatePerSec:   getEnvFloat("LLM_RATE_PER_SEC", 2),

		RegistryAPIKey: os.Getenv("REGISTRY_API_KEY"),
		PlacesAPIKey:   os.Getenv("PLACES_API_KEY"),
		PeopleAPIKey:   os.Getenv("PEOPLE_API_KEY"),
		LinkedInAPIKey: os.Getenv("LINKEDIN_API_KEY"),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),

		DailySubmissionQuota: getEnvInt("DAILY_SUBMISSION_QUOTA", 10),
		SessionTTL:           getEnvDuration("SESSION_TTL", 30*24*time.Hour),
		EventRetention:       getEnvDuration("EVENT_RETENTION", 7*24*time.Hour),

		WorkerCount:       getEnvInt("WORKER_COUNT", 2),
		WorkerPollEvery:   getEnvDuration("WORKER_POLL_EVERY", 2*time.Second),
		OrphanStaleAfter:  getEnvDuration("ORPHAN_STALE_AFTER", 5*time.Minute),
		CleanupSweepEvery: getEnvDuration("CLEANUP_SWEEP_EVERY", time.Hour),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Database.Password == "" && cfg.Environment == "production" {
		return nil, fmt.Errorf("DB_PASSWORD is required in production")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Invalid integer env var, using default", "key", key, "value", v)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("Invalid float env var, using default", "key", key, "value", v)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("Invalid duration env var, using default", "key", key, "value", v)
		return fallback
	}
	return d
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
