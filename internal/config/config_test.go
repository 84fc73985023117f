package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoDBURL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, []string{"meteoswiss", "pioupiou"}, cfg.PreferredProviders)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "station-events", cfg.KafkaEventTopic)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 7*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("MONGODB_URL", "mongodb://db1:27017")
	t.Setenv("REDIS_URL", "redis://cache1:6379/1")
	t.Setenv("GOOGLE_API_KEY", "test-key")
	t.Setenv("PREFERRED_PROVIDERS", "alpha, beta ,gamma")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_EVENTS_TOPIC", "custom-events")
	t.Setenv("CONNECT_TIMEOUT", "2s")
	t.Setenv("READ_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mongodb://db1:27017", cfg.MongoDBURL)
	assert.Equal(t, "redis://cache1:6379/1", cfg.RedisURL)
	assert.Equal(t, "test-key", cfg.GoogleAPIKey)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, cfg.PreferredProviders)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-events", cfg.KafkaEventTopic)
	assert.Equal(t, 2*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
}

func TestLoad_InvalidConnectTimeout(t *testing.T) {
	t.Setenv("CONNECT_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONNECT_TIMEOUT")
}

func TestLoad_InvalidReadTimeout(t *testing.T) {
	t.Setenv("READ_TIMEOUT", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "READ_TIMEOUT")
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "bad")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestDisabledProvider(t *testing.T) {
	t.Setenv("DISABLE_PROVIDER_HOLFUY", "true")
	assert.True(t, DisabledProvider("holfuy"))
	assert.True(t, DisabledProvider("HOLFUY"))
	assert.False(t, DisabledProvider("metar"))
}

func TestDisabledProvider_InvalidValueIsNotDisabled(t *testing.T) {
	t.Setenv("DISABLE_PROVIDER_METAR", "not-a-bool")
	assert.False(t, DisabledProvider("metar"))
}
