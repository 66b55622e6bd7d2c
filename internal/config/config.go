// Package config loads the fleetd configuration: a YAML file with
// environment-variable overrides for the deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`

	Redis struct {
		Addr     string `yaml:"addr"`
		FrameTTL int    `yaml:"frame_ttl_seconds"`
	} `yaml:"redis"`

	NATS struct {
		URL        string `yaml:"url"`
		Subject    string `yaml:"subject"`
		MaxRetries int    `yaml:"max_retries"`
	} `yaml:"nats"`

	Health struct {
		IntervalSeconds int `yaml:"interval_seconds"`
		BatchSize       int `yaml:"batch_size"`
		UptimeWindow    int `yaml:"uptime_window"`
	} `yaml:"health"`

	Reconnect struct {
		InitialDelaySeconds int     `yaml:"initial_delay_seconds"`
		MaxDelaySeconds     int     `yaml:"max_delay_seconds"`
		BackoffFactor       float64 `yaml:"backoff_factor"`
		MaxAttempts         int     `yaml:"max_attempts"`
	} `yaml:"reconnect"`

	Scan struct {
		Workers               int `yaml:"workers"`
		ConnectTimeoutMillis  int `yaml:"connect_timeout_ms"`
		ProbeTimeoutSeconds   int `yaml:"probe_timeout_seconds"`
		ConnectTestTimeoutSec int `yaml:"connect_test_timeout_seconds"`
	} `yaml:"scan"`

	Profiles struct {
		OverlayPath string `yaml:"overlay_path"`
	} `yaml:"profiles"`

	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

func defaults() Config {
	var c Config
	c.Server.Addr = ":8080"
	c.Redis.FrameTTL = 10
	c.NATS.Subject = "ovfleet.device.status"
	c.NATS.MaxRetries = 3
	c.Health.IntervalSeconds = 60
	c.Health.BatchSize = 10
	c.Health.UptimeWindow = 43200
	c.Reconnect.InitialDelaySeconds = 10
	c.Reconnect.MaxDelaySeconds = 300
	c.Reconnect.BackoffFactor = 2.0
	c.Reconnect.MaxAttempts = 5
	c.Scan.Workers = 128
	c.Scan.ConnectTimeoutMillis = 400
	c.Scan.ProbeTimeoutSeconds = 4
	c.Scan.ConnectTestTimeoutSec = 5
	c.Log.Level = "info"
	return c
}

// Load reads the YAML file when present, then applies environment overrides.
// A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// run on defaults and env
		default:
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	envStr("OVFLEET_ADDR", &cfg.Server.Addr)
	envStr("OVFLEET_DB_DSN", &cfg.Database.DSN)
	envStr("OVFLEET_REDIS_ADDR", &cfg.Redis.Addr)
	envStr("OVFLEET_NATS_URL", &cfg.NATS.URL)
	envStr("OVFLEET_NATS_SUBJECT", &cfg.NATS.Subject)
	envStr("OVFLEET_PROFILES_OVERLAY", &cfg.Profiles.OverlayPath)
	envStr("OVFLEET_LOG_LEVEL", &cfg.Log.Level)
	envInt("OVFLEET_HEALTH_INTERVAL", &cfg.Health.IntervalSeconds)
	envInt("OVFLEET_HEALTH_BATCH", &cfg.Health.BatchSize)
	envInt("OVFLEET_SCAN_WORKERS", &cfg.Scan.Workers)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (c Config) HealthInterval() time.Duration {
	return time.Duration(c.Health.IntervalSeconds) * time.Second
}

func (c Config) ScanConnectTimeout() time.Duration {
	return time.Duration(c.Scan.ConnectTimeoutMillis) * time.Millisecond
}

func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Scan.ProbeTimeoutSeconds) * time.Second
}

func (c Config) ConnectTestTimeout() time.Duration {
	return time.Duration(c.Scan.ConnectTestTimeoutSec) * time.Second
}

func (c Config) FrameTTL() time.Duration {
	return time.Duration(c.Redis.FrameTTL) * time.Second
}
