// Package config loads service settings from environment variables for both
// the scheduler daemon and the admin CLI.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	MongoDBURL string
	RedisURL   string

	GoogleAPIKey string

	SentryURL   string
	Environment string

	AdminDBURL string

	PreferredProviders []string

	KafkaBrokers    []string
	KafkaEventTopic string

	HTTPAddr string

	LogLevel  string
	LogFormat string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset, validating the handful of settings that must parse cleanly.
func Load() (*Config, error) {
	connectTimeoutStr := envOrDefault("CONNECT_TIMEOUT", "7s")
	connectTimeout, err := time.ParseDuration(connectTimeoutStr)
	if err != nil || connectTimeout <= 0 {
		return nil, errors.New("invalid CONNECT_TIMEOUT")
	}

	readTimeoutStr := envOrDefault("READ_TIMEOUT", "30s")
	readTimeout, err := time.ParseDuration(readTimeoutStr)
	if err != nil || readTimeout <= 0 {
		return nil, errors.New("invalid READ_TIMEOUT")
	}

	shutdownStr := envOrDefault("SHUTDOWN_TIMEOUT", "10s")
	shutdownTimeout, err := time.ParseDuration(shutdownStr)
	if err != nil || shutdownTimeout <= 0 {
		return nil, errors.New("invalid SHUTDOWN_TIMEOUT")
	}

	cfg := &Config{
		MongoDBURL: envOrDefault("MONGODB_URL", "mongodb://localhost:27017"),
		RedisURL:   envOrDefault("REDIS_URL", "redis://localhost:6379/0"),

		GoogleAPIKey: os.Getenv("GOOGLE_API_KEY"),

		SentryURL:   os.Getenv("SENTRY_URL"),
		Environment: envOrDefault("ENVIRONMENT", "development"),

		AdminDBURL: os.Getenv("ADMIN_DB_URL"),

		PreferredProviders: splitCSV(envOrDefault("PREFERRED_PROVIDERS", "meteoswiss,pioupiou")),

		KafkaBrokers:    parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaEventTopic: envOrDefault("KAFKA_EVENTS_TOPIC", "station-events"),

		HTTPAddr: envOrDefault("HTTP_ADDR", ":8080"),

		LogLevel:  envOrDefault("LOG_LEVEL", "info"),
		LogFormat: envOrDefault("LOG_FORMAT", "json"),

		ConnectTimeout: connectTimeout,
		ReadTimeout:    readTimeout,

		ShutdownTimeout: shutdownTimeout,
	}

	return cfg, nil
}

// DisabledProvider reports whether DISABLE_PROVIDER_<NAME> is set truthy
// for the given (case-insensitive) provider name.
func DisabledProvider(name string) bool {
	v := os.Getenv("DISABLE_PROVIDER_" + strings.ToUpper(name))
	if v == "" {
		return false
	}
	disabled, err := strconv.ParseBool(v)
	return err == nil && disabled
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBrokers(value string) []string {
	return splitCSV(value)
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
