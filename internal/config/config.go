package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the conversation memory service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	DatabaseURL string

	InferenceProvider string
	ProviderParams    map[string]string

	RetentionDays      int
	TrackerMaxSessions int
	TrackerInactivity  time.Duration
	JanitorInterval    time.Duration

	TokenizeQueueSize int
	BackfillDelay     time.Duration
	BackfillPageSize  int

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	APIKeys []string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:           envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:   envOrDefault("APP_METRICS_NAMESPACE", "contextd"),
		AllowAnyOrigin:     false,
		DatabaseURL:        envTrimmed("DATABASE_URL"),
		InferenceProvider:  envOrDefault("INFERENCE_PROVIDER", "openai"),
		ProviderParams:     parseParams(os.Getenv("INFERENCE_PROVIDER_PARAMS")),
		RetentionDays:      30,
		TrackerMaxSessions: 10_000,
		TrackerInactivity:  24 * time.Hour,
		JanitorInterval:    time.Minute,
		TokenizeQueueSize:  1024,
		BackfillDelay:      30 * time.Second,
		BackfillPageSize:   200,
		RetryMaxAttempts:   3,
		RetryBaseDelay:     100 * time.Millisecond,
		RetryMaxDelay:      2 * time.Second,
		ShutdownTimeout:    15 * time.Second,
	}

	if keys := envTrimmed("APP_API_KEYS"); keys != "" {
		for _, k := range strings.Split(keys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				cfg.APIKeys = append(cfg.APIKeys, k)
			}
		}
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.RetentionDays, err = intFromEnv("MEMORY_RETENTION_DAYS", cfg.RetentionDays)
	if err != nil {
		return Config{}, err
	}
	cfg.TrackerMaxSessions, err = intFromEnv("MEMORY_TRACKER_MAX_SESSIONS", cfg.TrackerMaxSessions)
	if err != nil {
		return Config{}, err
	}
	cfg.TrackerInactivity, err = durationFromEnv("MEMORY_TRACKER_INACTIVITY", cfg.TrackerInactivity)
	if err != nil {
		return Config{}, err
	}
	cfg.JanitorInterval, err = durationFromEnv("MEMORY_JANITOR_INTERVAL", cfg.JanitorInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.TokenizeQueueSize, err = intFromEnv("MEMORY_TOKENIZE_QUEUE_SIZE", cfg.TokenizeQueueSize)
	if err != nil {
		return Config{}, err
	}
	cfg.BackfillDelay, err = durationFromEnv("MEMORY_BACKFILL_DELAY", cfg.BackfillDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.BackfillPageSize, err = intFromEnv("MEMORY_BACKFILL_PAGE_SIZE", cfg.BackfillPageSize)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryMaxAttempts, err = intFromEnv("MEMORY_RETRY_MAX_ATTEMPTS", cfg.RetryMaxAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryBaseDelay, err = durationFromEnv("MEMORY_RETRY_BASE_DELAY", cfg.RetryBaseDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryMaxDelay, err = durationFromEnv("MEMORY_RETRY_MAX_DELAY", cfg.RetryMaxDelay)
	if err != nil {
		return Config{}, err
	}

	if cfg.RetentionDays <= 0 {
		return Config{}, fmt.Errorf("MEMORY_RETENTION_DAYS must be positive")
	}
	if cfg.TrackerMaxSessions <= 0 {
		return Config{}, fmt.Errorf("MEMORY_TRACKER_MAX_SESSIONS must be positive")
	}
	if cfg.TrackerInactivity < time.Minute {
		return Config{}, fmt.Errorf("MEMORY_TRACKER_INACTIVITY must be at least 1m")
	}
	if cfg.TokenizeQueueSize <= 0 {
		return Config{}, fmt.Errorf("MEMORY_TOKENIZE_QUEUE_SIZE must be positive")
	}
	if cfg.BackfillPageSize <= 0 {
		return Config{}, fmt.Errorf("MEMORY_BACKFILL_PAGE_SIZE must be positive")
	}
	if cfg.RetryMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("MEMORY_RETRY_MAX_ATTEMPTS must be positive")
	}

	return cfg, nil
}

// parseParams decodes a "key=value,key=value" provider parameter list.
func parseParams(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	params := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if ok && k != "" {
			params[k] = v
		}
	}
	return params
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
