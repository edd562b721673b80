package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime settings, loaded from JAM_* environment variables.
type Config struct {
	ListenAddr    string
	DBPath        string
	APIKeys       []string
	CORSOrigins   []string
	Concurrency   int
	QueueSize     int
	InsertDelay   time.Duration
	SeedCompanies int
	RateLimitRPS  int
}

func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr: getEnv("JAM_LISTEN_ADDR", ":8080"),
		DBPath:     getEnv("JAM_DB_PATH", "jam.db"),
	}

	// API keys are optional: an empty list disables authentication, which is
	// the expected mode for local development with the web UI.
	for _, k := range strings.Split(getEnv("JAM_API_KEYS", ""), ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			cfg.APIKeys = append(cfg.APIKeys, k)
		}
	}

	for _, o := range strings.Split(getEnv("JAM_CORS_ORIGINS", "http://localhost:5173"), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	var err error
	cfg.Concurrency, err = getEnvInt("JAM_CONCURRENCY", 4)
	if err != nil {
		return nil, fmt.Errorf("JAM_CONCURRENCY: %w", err)
	}
	if cfg.Concurrency < 1 {
		return nil, errors.New("JAM_CONCURRENCY must be > 0")
	}

	cfg.QueueSize, err = getEnvInt("JAM_QUEUE_SIZE", 100)
	if err != nil {
		return nil, fmt.Errorf("JAM_QUEUE_SIZE: %w", err)
	}
	if cfg.QueueSize < 1 {
		return nil, errors.New("JAM_QUEUE_SIZE must be > 0")
	}

	// Throttle applied inside the storage layer to each association insert, in
	// milliseconds. Keeps bulk adds slow enough to watch; set to 0 to disable.
	delayMS, err := getEnvInt("JAM_INSERT_DELAY_MS", 100)
	if err != nil {
		return nil, fmt.Errorf("JAM_INSERT_DELAY_MS: %w", err)
	}
	if delayMS < 0 {
		return nil, errors.New("JAM_INSERT_DELAY_MS must be >= 0")
	}
	cfg.InsertDelay = time.Duration(delayMS) * time.Millisecond

	cfg.SeedCompanies, err = getEnvInt("JAM_SEED_COMPANIES", 1000)
	if err != nil {
		return nil, fmt.Errorf("JAM_SEED_COMPANIES: %w", err)
	}
	if cfg.SeedCompanies < 0 {
		return nil, errors.New("JAM_SEED_COMPANIES must be >= 0")
	}

	cfg.RateLimitRPS, err = getEnvInt("JAM_RATE_LIMIT_RPS", 0)
	if err != nil {
		return nil, fmt.Errorf("JAM_RATE_LIMIT_RPS: %w", err)
	}
	if cfg.RateLimitRPS < 0 {
		return nil, errors.New("JAM_RATE_LIMIT_RPS must be >= 0")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}
