// Package config handles configuration loading from environment variables
// and an optional YAML config file. Environment variables win over the
// file, the file wins over defaults.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Runtime selects which tool-invocation backends the worker registers.
// HTTP-backed tools are always available; "docker" additionally enables
// container tools and requires a reachable Docker daemon.
const (
	RuntimeDocker = "docker"
	RuntimeNone   = "none"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string
	DatabaseURL string

	// Redis connection URL for the execution counter cache
	RedisURL string

	// HTTP server port for the controller
	HTTPPort int

	// Worker-specific configuration
	WorkerConcurrency       int
	WorkerPollInterval      time.Duration
	WorkerMaxBackoff        time.Duration
	WorkerHeartbeatInterval time.Duration

	// Tool runtime selection and scratch space
	Runtime        string
	RuntimeWorkDir string

	// FileTimeout bounds one full processing attempt of one file
	FileTimeout time.Duration

	// NotificationTimeout bounds one webhook POST attempt
	NotificationTimeout time.Duration

	// URL of the controller (used by the CLI)
	ControllerURL string

	// OTLP collector endpoint for traces
	OTELEndpoint string

	// Minimum log level: debug, info, warn or error
	LogLevel string
}

// Load reads configuration from the optional config file and the
// environment. An empty configFile skips the file entirely.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("http_port", 6161)
	v.SetDefault("worker_concurrency", 1)
	v.SetDefault("worker_poll_interval", "1s")
	v.SetDefault("worker_max_backoff", "30s")
	v.SetDefault("worker_heartbeat_interval", "2m")
	v.SetDefault("runtime", RuntimeDocker)
	v.SetDefault("runtime_workdir", "")
	v.SetDefault("file_timeout", "30m")
	v.SetDefault("notification_timeout", "10s")
	v.SetDefault("controller_url", "http://localhost:6161")
	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("log_level", "info")

	// Explicit bindings so the env names stay conventional.
	v.BindEnv("database_url", "DATABASE_URL")
	v.BindEnv("redis_url", "REDIS_URL")
	v.BindEnv("http_port", "PORT")
	v.BindEnv("worker_concurrency", "WORKER_CONCURRENCY")
	v.BindEnv("worker_poll_interval", "WORKER_POLL_INTERVAL")
	v.BindEnv("worker_max_backoff", "WORKER_MAX_BACKOFF")
	v.BindEnv("worker_heartbeat_interval", "WORKER_HEARTBEAT_INTERVAL")
	v.BindEnv("runtime", "RUNTIME")
	v.BindEnv("runtime_workdir", "RUNTIME_WORKDIR")
	v.BindEnv("file_timeout", "FILE_TIMEOUT")
	v.BindEnv("notification_timeout", "NOTIFICATION_TIMEOUT")
	v.BindEnv("controller_url", "CONTROLLER_URL")
	v.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("log_level", "LOG_LEVEL")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		DatabaseURL:         v.GetString("database_url"),
		RedisURL:            v.GetString("redis_url"),
		HTTPPort:            v.GetInt("http_port"),
		WorkerConcurrency:   v.GetInt("worker_concurrency"),
		Runtime:             v.GetString("runtime"),
		RuntimeWorkDir:      v.GetString("runtime_workdir"),
		ControllerURL:       v.GetString("controller_url"),
		OTELEndpoint:        v.GetString("otel_endpoint"),
		LogLevel:            v.GetString("log_level"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required (env: DATABASE_URL)")
	}

	var err error
	if cfg.WorkerPollInterval, err = parseDuration(v, "worker_poll_interval"); err != nil {
		return nil, err
	}
	if cfg.WorkerMaxBackoff, err = parseDuration(v, "worker_max_backoff"); err != nil {
		return nil, err
	}
	if cfg.WorkerHeartbeatInterval, err = parseDuration(v, "worker_heartbeat_interval"); err != nil {
		return nil, err
	}
	if cfg.FileTimeout, err = parseDuration(v, "file_timeout"); err != nil {
		return nil, err
	}
	if cfg.NotificationTimeout, err = parseDuration(v, "notification_timeout"); err != nil {
		return nil, err
	}

	if cfg.Runtime != RuntimeDocker && cfg.Runtime != RuntimeNone {
		return nil, fmt.Errorf("invalid runtime %q (must be %q or %q)", cfg.Runtime, RuntimeDocker, RuntimeNone)
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
