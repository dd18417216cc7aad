// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr        string
	DatabaseURL string
	LogLevel    string

	JWTSecret string
	// APIKeys is "key=actor,key=actor" pairs.
	APIKeys map[string]string

	PacksDir       string
	WatchPacks     bool
	VerifySchedule string

	KafkaBrokers []string
	KafkaTopic   string
	S3Bucket     string
	S3Prefix     string

	StreamBatchSize    int
	StreamPollInterval time.Duration
	StreamConcurrency  int
}

const (
	defaultAddr           = ":8080"
	defaultKafkaTopic     = "vorpal.audit.events"
	defaultVerifySchedule = "0 3 * * *"
)

// Load reads configuration from the environment. DatabaseURL empty selects
// the in-memory stores, which is the dev/test mode.
func Load() (Config, error) {
	cfg := Config{
		Addr:        getEnv("VORPAL_ADDR", defaultAddr),
		DatabaseURL: firstNonEmpty(os.Getenv("VORPAL_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		LogLevel:    getEnv("VORPAL_LOG_LEVEL", "info"),

		JWTSecret: os.Getenv("VORPAL_JWT_SECRET"),
		APIKeys:   parseAPIKeys(os.Getenv("VORPAL_API_KEYS")),

		PacksDir:       os.Getenv("VORPAL_PACKS_DIR"),
		WatchPacks:     getBool("VORPAL_WATCH_PACKS", true),
		VerifySchedule: getEnv("VORPAL_VERIFY_SCHEDULE", defaultVerifySchedule),

		KafkaBrokers: splitNonEmpty(os.Getenv("VORPAL_KAFKA_BROKERS")),
		KafkaTopic:   getEnv("VORPAL_KAFKA_TOPIC", defaultKafkaTopic),
		S3Bucket:     os.Getenv("VORPAL_S3_BUCKET"),
		S3Prefix:     os.Getenv("VORPAL_S3_PREFIX"),

		StreamBatchSize:    getInt("VORPAL_STREAM_BATCH_SIZE", 10),
		StreamPollInterval: getDuration("VORPAL_STREAM_POLL_INTERVAL", 3*time.Second),
		StreamConcurrency:  getInt("VORPAL_STREAM_CONCURRENCY", 5),
	}

	// Streaming requires both sinks and a durable store for claim state.
	if cfg.StreamingEnabled() && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("VORPAL_DATABASE_URL required when audit streaming is configured")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.S3Bucket == "" {
		return Config{}, fmt.Errorf("VORPAL_S3_BUCKET required when VORPAL_KAFKA_BROKERS set")
	}
	if cfg.S3Bucket != "" && len(cfg.KafkaBrokers) == 0 {
		return Config{}, fmt.Errorf("VORPAL_KAFKA_BROKERS required when VORPAL_S3_BUCKET set")
	}
	return cfg, nil
}

// StreamingEnabled reports whether the Kafka/S3 streamer should run.
func (c Config) StreamingEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.S3Bucket != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
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

func splitNonEmpty(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseAPIKeys(v string) map[string]string {
	if v == "" {
		return nil
	}
	out := map[string]string{}
	for _, pair := range strings.Split(v, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			out[parts[0]] = parts[1]
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
