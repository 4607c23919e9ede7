package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	DatabaseURL       string `yaml:"database_url"`
	RedisURL          string `yaml:"redis_url"`
	ServerPort        string `yaml:"server_port"`
	LogLevel          string `yaml:"log_level"`
	UserAgent         string `yaml:"user_agent"`
	Timeout           string `yaml:"timeout"`
	FullSyncWindow    string `yaml:"full_sync_window"`
	CurrentSyncWindow string `yaml:"current_sync_window"`
	MaxBatchOps       int    `yaml:"max_batch_ops"`
	SyncWorkers       int    `yaml:"sync_workers"`
}

// LoadFromFile loads config from a YAML file. database_url is required.
// Durations use Go syntax ("336h", "1h", "30s").
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	c := &Config{
		DatabaseURL:       f.DatabaseURL,
		RedisURL:          f.RedisURL,
		ServerPort:        f.ServerPort,
		LogLevel:          f.LogLevel,
		UserAgent:         f.UserAgent,
		Timeout:           parseDuration(f.Timeout),
		FullSyncWindow:    parseDuration(f.FullSyncWindow),
		CurrentSyncWindow: parseDuration(f.CurrentSyncWindow),
		MaxBatchOps:       f.MaxBatchOps,
		SyncWorkers:       f.SyncWorkers,
	}
	c.applyDefaults()
	return c, nil
}

func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
