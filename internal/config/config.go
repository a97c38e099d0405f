package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Sync        SyncConfig
	Sink        SinkConfig
	Logging     LoggingConfig
	Environment string
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
}

// SyncConfig controls the external-source synchronization engine.
type SyncConfig struct {
	// Interval between scheduled sweeps, aligned to the wall clock.
	Interval time.Duration
	// MaxFiles caps how many new files one source processes per sweep.
	MaxFiles int
	// Workers bounds how many sources run concurrently within a sweep.
	Workers int
	// SweepDeadline bounds how long a sweep waits before reporting
	// stragglers as in-progress.
	SweepDeadline  time.Duration
	ListingTimeout time.Duration
	FetchTimeout   time.Duration
}

// SinkConfig points at the detection pipeline's ingest endpoint.
type SinkConfig struct {
	URL    string
	APIKey string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 10),
		},
		Sync: SyncConfig{
			Interval:       getEnvDuration("SYNC_INTERVAL", time.Hour),
			MaxFiles:       getEnvInt("SYNC_MAX_FILES", 10),
			Workers:        getEnvInt("SYNC_WORKERS", 4),
			SweepDeadline:  getEnvDuration("SYNC_SWEEP_DEADLINE", 10*time.Minute),
			ListingTimeout: getEnvDuration("SYNC_LISTING_TIMEOUT", 10*time.Second),
			FetchTimeout:   getEnvDuration("SYNC_FETCH_TIMEOUT", 45*time.Second),
		},
		Sink: SinkConfig{
			URL:    getEnv("SINK_URL", ""),
			APIKey: getEnv("SINK_API_KEY", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Sink.URL == "" {
		return Config{}, fmt.Errorf("SINK_URL is required")
	}
	if cfg.Sync.Interval < time.Minute {
		return Config{}, fmt.Errorf("SYNC_INTERVAL must be at least 1m, got %s", cfg.Sync.Interval)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
