package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// ErrMissingDatabaseURL is returned when no database DSN is configured.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

// Defaults for the sync tunables. Store payload limits and look-ahead
// horizons vary by deployment, so all of them are named configuration
// values rather than in-code constants.
const (
	DefaultFullSyncWindow    = 14 * 24 * time.Hour
	DefaultCurrentSyncWindow = time.Hour
	DefaultMaxBatchOps       = 100
	DefaultSyncWorkers       = 4
	DefaultTimeout           = 30 * time.Second
	DefaultServerPort        = "8080"
	DefaultUserAgent         = "GuideVault/1.0"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`
	ServerPort  string `yaml:"server_port"`
	LogLevel    string `yaml:"log_level"`

	// Fetcher settings.
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"-"`

	// Sync settings.
	FullSyncWindow    time.Duration `yaml:"-"`
	CurrentSyncWindow time.Duration `yaml:"-"`
	MaxBatchOps       int           `yaml:"max_batch_ops"`
	SyncWorkers       int           `yaml:"sync_workers"`
}

// Load builds config from environment variables. If DATABASE_URL is not set,
// Load first tries .env.local and .env from the working directory and the
// executable's directory. DATABASE_URL is required; everything else has a
// default.
func Load() (*Config, error) {
	if os.Getenv("DATABASE_URL") == "" {
		loadEnvFiles()
	}
	c := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		ServerPort:        os.Getenv("SERVER_PORT"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		UserAgent:         os.Getenv("FETCHER_USER_AGENT"),
		Timeout:           envDuration("FETCHER_TIMEOUT", DefaultTimeout),
		FullSyncWindow:    envDuration("FULL_SYNC_WINDOW", DefaultFullSyncWindow),
		CurrentSyncWindow: envDuration("CURRENT_SYNC_WINDOW", DefaultCurrentSyncWindow),
		MaxBatchOps:       envInt("MAX_BATCH_OPS", DefaultMaxBatchOps),
		SyncWorkers:       envInt("SYNC_WORKERS", DefaultSyncWorkers),
	}
	c.applyDefaults()
	if c.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.ServerPort == "" {
		c.ServerPort = DefaultServerPort
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.FullSyncWindow <= 0 {
		c.FullSyncWindow = DefaultFullSyncWindow
	}
	if c.CurrentSyncWindow <= 0 {
		c.CurrentSyncWindow = DefaultCurrentSyncWindow
	}
	if c.MaxBatchOps <= 0 {
		c.MaxBatchOps = DefaultMaxBatchOps
	}
	if c.SyncWorkers <= 0 {
		c.SyncWorkers = DefaultSyncWorkers
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
