package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ConfigError reports a missing or invalid configuration key. It is fatal at
// startup, before any pipeline stage runs.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

// Config holds everything the pipeline and the API server read from the
// environment. The entry points load a .env file first via godotenv.
type Config struct {
	// Shifts API
	APIBaseURL     string
	APIPageSize    int
	APITimeout     time.Duration
	APIMaxAttempts int

	// Target store
	DatabaseDSN string
	FullRefresh bool

	// Run tracking
	TrackingDBPath string

	// Orchestration
	RunTimeout time.Duration

	// API server
	ServerPort string
}

// ServerConfig is the subset of configuration the run-history API needs.
type ServerConfig struct {
	TrackingDBPath string
	ServerPort     string
}

// LoadServer reads configuration for the run-history API. Nothing is
// required; the tracking path and port default like in Load.
func LoadServer() *ServerConfig {
	cfg := &ServerConfig{
		TrackingDBPath: "etl.db",
		ServerPort:     "8080",
	}
	if v := os.Getenv("TRACKING_DB_PATH"); v != "" {
		cfg.TrackingDBPath = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		cfg.ServerPort = v
	}
	return cfg
}

// Load reads configuration from the environment. SHIFTS_API_URL and
// DATABASE_DSN are required; everything else has a default.
func Load() (*Config, error) {
	cfg := &Config{
		APIBaseURL:     os.Getenv("SHIFTS_API_URL"),
		APIPageSize:    100,
		APITimeout:     10 * time.Second,
		APIMaxAttempts: 3,
		DatabaseDSN:    os.Getenv("DATABASE_DSN"),
		TrackingDBPath: "etl.db",
		RunTimeout:     5 * time.Minute,
		ServerPort:     "8080",
	}

	if cfg.APIBaseURL == "" {
		return nil, &ConfigError{Key: "SHIFTS_API_URL", Reason: "required"}
	}
	if cfg.DatabaseDSN == "" {
		return nil, &ConfigError{Key: "DATABASE_DSN", Reason: "required"}
	}

	if v := os.Getenv("SHIFTS_API_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, &ConfigError{Key: "SHIFTS_API_PAGE_SIZE", Reason: "must be a positive integer"}
		}
		cfg.APIPageSize = n
	}
	if v := os.Getenv("SHIFTS_API_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, &ConfigError{Key: "SHIFTS_API_TIMEOUT", Reason: "must be a positive duration"}
		}
		cfg.APITimeout = d
	}
	if v := os.Getenv("SHIFTS_API_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, &ConfigError{Key: "SHIFTS_API_MAX_ATTEMPTS", Reason: "must be a positive integer"}
		}
		cfg.APIMaxAttempts = n
	}
	if v := os.Getenv("ETL_FULL_REFRESH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &ConfigError{Key: "ETL_FULL_REFRESH", Reason: "must be a boolean"}
		}
		cfg.FullRefresh = b
	}
	if v := os.Getenv("TRACKING_DB_PATH"); v != "" {
		cfg.TrackingDBPath = v
	}
	if v := os.Getenv("ETL_RUN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, &ConfigError{Key: "ETL_RUN_TIMEOUT", Reason: "must be a positive duration"}
		}
		cfg.RunTimeout = d
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		cfg.ServerPort = v
	}

	return cfg, nil
}
