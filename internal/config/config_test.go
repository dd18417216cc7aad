package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearDatabaseEnv blanks the database variables so tests are independent
// of whatever the host shell exports.
func clearDatabaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("VORPAL_DATABASE_URL", "")
	t.Setenv("DATABASE_URL", "")
}

func TestLoadDefaults(t *testing.T) {
	clearDatabaseEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, "vorpal.audit.events", cfg.KafkaTopic)
	assert.Equal(t, "0 3 * * *", cfg.VerifySchedule)
	assert.True(t, cfg.WatchPacks)
	assert.Equal(t, 10, cfg.StreamBatchSize)
	assert.Equal(t, 3*time.Second, cfg.StreamPollInterval)
	assert.Equal(t, 5, cfg.StreamConcurrency)
	assert.False(t, cfg.StreamingEnabled())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("VORPAL_ADDR", ":9090")
	t.Setenv("VORPAL_DATABASE_URL", "postgres://localhost/vorpal")
	t.Setenv("VORPAL_KAFKA_BROKERS", "broker-a:9092, broker-b:9092")
	t.Setenv("VORPAL_S3_BUCKET", "vorpal-audit")
	t.Setenv("VORPAL_API_KEYS", "key-1=ci-bot, key-2=deployer")
	t.Setenv("VORPAL_STREAM_POLL_INTERVAL", "500ms")
	t.Setenv("VORPAL_WATCH_PACKS", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, []string{"broker-a:9092", "broker-b:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, map[string]string{"key-1": "ci-bot", "key-2": "deployer"}, cfg.APIKeys)
	assert.Equal(t, 500*time.Millisecond, cfg.StreamPollInterval)
	assert.False(t, cfg.WatchPacks)
	assert.True(t, cfg.StreamingEnabled())
}

func TestDatabaseURLFallback(t *testing.T) {
	t.Setenv("VORPAL_DATABASE_URL", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/shared")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/shared", cfg.DatabaseURL)
}

func TestStreamingRequiresDatabase(t *testing.T) {
	clearDatabaseEnv(t)
	t.Setenv("VORPAL_KAFKA_BROKERS", "broker:9092")
	t.Setenv("VORPAL_S3_BUCKET", "vorpal-audit")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VORPAL_DATABASE_URL")
}

func TestStreamingSinksMustBePaired(t *testing.T) {
	t.Setenv("VORPAL_DATABASE_URL", "postgres://localhost/vorpal")
	t.Setenv("VORPAL_KAFKA_BROKERS", "broker:9092")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VORPAL_S3_BUCKET")

	t.Setenv("VORPAL_KAFKA_BROKERS", "")
	t.Setenv("VORPAL_S3_BUCKET", "vorpal-audit")

	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VORPAL_KAFKA_BROKERS")
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("VORPAL_STREAM_BATCH_SIZE", "not-a-number")
	t.Setenv("VORPAL_WATCH_PACKS", "maybe")
	t.Setenv("VORPAL_API_KEYS", "orphan-token")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.StreamBatchSize)
	assert.True(t, cfg.WatchPacks)
	assert.Nil(t, cfg.APIKeys)
}
