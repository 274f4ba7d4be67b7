/*
Package config loads the server configuration.

PURPOSE:
  One YAML file describes the server, its stores and the reconciliation
  schedule. Every field has a default, so an empty or missing path runs a
  local development server against ./data/resale.db without Redis.

EXAMPLE:
  server:
    addr: ":8080"
    shutdown_timeout: 10s
    cors_origins: ["http://localhost:3000"]
  database:
    path: ./data/resale.db
  redis:
    enabled: true
    addr: localhost:6379
    cart_ttl: 720h
  reconciliation:
    enabled: true
    interval: 15m
    concurrency: 4
    prune: false
  log:
    level: info
    format: json

SEE ALSO:
  - cmd/server/main.go: Flags override file values
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Redis          RedisConfig          `yaml:"redis"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	Log            LogConfig            `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig selects where carts and cached orders live. When disabled they
// are kept in process memory.
type RedisConfig struct {
	Enabled bool          `yaml:"enabled"`
	Addr    string        `yaml:"addr"`
	CartTTL time.Duration `yaml:"cart_ttl"`
}

type ReconciliationConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	Prune       bool          `yaml:"prune"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Default returns the development configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{Path: "./data/resale.db"},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			CartTTL: 30 * 24 * time.Hour,
		},
		Reconciliation: ReconciliationConfig{
			Enabled:     true,
			Interval:    15 * time.Minute,
			Concurrency: 4,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Redis.Enabled && strings.TrimSpace(c.Redis.Addr) == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	if c.Reconciliation.Enabled && c.Reconciliation.Interval <= 0 {
		errs = append(errs, errors.New("reconciliation.interval must be positive"))
	}
	if c.Reconciliation.Concurrency < 0 {
		errs = append(errs, errors.New("reconciliation.concurrency must not be negative"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not json or text", c.Log.Format))
	}
	return errors.Join(errs...)
}
