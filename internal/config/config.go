// Package config provides configuration for the mallet proxy.
//
// Values come from an optional YAML file, then MALLET_* environment
// variables, then command-line flags (applied by the CLI).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the proxy configuration.
type Config struct {
	// Relay settings
	Listen   string `yaml:"listen"`   // client-facing TCP address
	Upstream string `yaml:"upstream"` // server address each connection is relayed to

	// Intercept holds events for the control actor. When false every event
	// is forwarded as soon as it is captured.
	Intercept bool `yaml:"intercept"`

	// Control API address; empty disables the API.
	Control string `yaml:"control"`

	// Journal is the SQLite decision journal path; empty disables it.
	Journal string `yaml:"journal"`

	DialTimeout  time.Duration `yaml:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadBuffer   int           `yaml:"read_buffer"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:       "127.0.0.1:8070",
		Intercept:    true,
		Control:      "127.0.0.1:8071",
		DialTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ReadBuffer:   32 * 1024,
		LogLevel:     "info",
	}
}

// Load reads path (if non-empty) over the defaults, then applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Listen = getEnv("MALLET_LISTEN", c.Listen)
	c.Upstream = getEnv("MALLET_UPSTREAM", c.Upstream)
	c.Control = getEnv("MALLET_CONTROL", c.Control)
	c.Journal = getEnv("MALLET_JOURNAL", c.Journal)
	c.Intercept = getEnvBool("MALLET_INTERCEPT", c.Intercept)
	c.DialTimeout = time.Duration(getEnvInt("MALLET_DIAL_TIMEOUT_MS", int(c.DialTimeout/time.Millisecond))) * time.Millisecond
	c.WriteTimeout = time.Duration(getEnvInt("MALLET_WRITE_TIMEOUT_MS", int(c.WriteTimeout/time.Millisecond))) * time.Millisecond
	c.ReadBuffer = getEnvInt("MALLET_READ_BUFFER", c.ReadBuffer)
	c.LogLevel = getEnv("MALLET_LOG_LEVEL", c.LogLevel)
}

// Validate checks that the relay can start.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.Upstream == "" {
		return fmt.Errorf("upstream address is required")
	}
	if c.ReadBuffer <= 0 {
		return fmt.Errorf("read_buffer must be positive, got %d", c.ReadBuffer)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a log level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
