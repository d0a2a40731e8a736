// Package config holds application configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration. Values come from defaults, an
// optional yaml file, and environment overrides, in that order.
type Config struct {
	LogLevel       string        `yaml:"log_level" default:"info"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	Warmup         time.Duration `yaml:"warmup" default:"2s"`
	NamePrefix     string        `yaml:"board_name_prefix" default:"GRANBOARD"`

	// Backend collaborators for match state and the realtime channel.
	DatabaseURL string `yaml:"database_url"`
	RealtimeURL string `yaml:"realtime_url"`
}

// UnmarshalYAML decodes a config document, accepting durations in
// time.ParseDuration form ("10s", "1m30s"). Keys absent from the document
// leave the current value untouched, so file settings layer over defaults.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		LogLevel       string `yaml:"log_level"`
		ScanTimeout    string `yaml:"scan_timeout"`
		ConnectTimeout string `yaml:"connect_timeout"`
		Warmup         string `yaml:"warmup"`
		NamePrefix     string `yaml:"board_name_prefix"`
		DatabaseURL    string `yaml:"database_url"`
		RealtimeURL    string `yaml:"realtime_url"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	setDuration := func(dst *time.Duration, s, key string) error {
		if s == "" {
			return nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, s, err)
		}
		*dst = d
		return nil
	}

	if raw.LogLevel != "" {
		c.LogLevel = raw.LogLevel
	}
	if err := setDuration(&c.ScanTimeout, raw.ScanTimeout, "scan_timeout"); err != nil {
		return err
	}
	if err := setDuration(&c.ConnectTimeout, raw.ConnectTimeout, "connect_timeout"); err != nil {
		return err
	}
	if err := setDuration(&c.Warmup, raw.Warmup, "warmup"); err != nil {
		return err
	}
	if raw.NamePrefix != "" {
		c.NamePrefix = raw.NamePrefix
	}
	if raw.DatabaseURL != "" {
		c.DatabaseURL = raw.DatabaseURL
	}
	if raw.RealtimeURL != "" {
		c.RealtimeURL = raw.RealtimeURL
	}
	return nil
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load builds the effective configuration. path may be empty; a missing
// file is not an error. A .env file in the working directory is honored
// for the environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv("DARTLINK_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("DARTLINK_REALTIME_URL"); v != "" {
		cfg.RealtimeURL = v
	}
	return cfg, nil
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}
