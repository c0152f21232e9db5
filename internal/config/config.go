package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration, loaded from an optional YAML
// file with NOTRA_* environment overrides applied on top.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Queue      QueueConfig      `yaml:"queue"`
	Generation GenerationConfig `yaml:"generation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// SchedulerConfig configures the remote cron registry.
type SchedulerConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Token       string        `yaml:"token"`
	SigningKey  string        `yaml:"signing_key"`
	CallbackURL string        `yaml:"callback_url"`
	Timeout     time.Duration `yaml:"timeout"`
}

// QueueConfig configures the NATS run queue. When disabled, scheduler
// callbacks execute workflow runs inline.
type QueueConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Stream  string `yaml:"stream"`
}

// GenerationConfig configures the content-generation capability.
type GenerationConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML file at path (when non-empty), applies environment
// overrides, fills defaults, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Addr, "NOTRA_SERVER_ADDR")
	setString(&c.Database.URL, "NOTRA_DATABASE_URL")
	setString(&c.Scheduler.BaseURL, "NOTRA_QSTASH_URL")
	setString(&c.Scheduler.Token, "NOTRA_QSTASH_TOKEN")
	setString(&c.Scheduler.SigningKey, "NOTRA_QSTASH_SIGNING_KEY")
	setString(&c.Scheduler.CallbackURL, "NOTRA_CALLBACK_URL")
	setString(&c.Queue.URL, "NOTRA_NATS_URL")
	setString(&c.Generation.APIKey, "NOTRA_OPENAI_API_KEY")
	setString(&c.Generation.BaseURL, "NOTRA_OPENAI_BASE_URL")
	setString(&c.Generation.Model, "NOTRA_OPENAI_MODEL")
	setString(&c.Logging.Level, "NOTRA_LOG_LEVEL")
	setString(&c.Logging.Format, "NOTRA_LOG_FORMAT")

	if v := os.Getenv("NOTRA_QUEUE_ENABLED"); v != "" {
		c.Queue.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Scheduler.BaseURL == "" {
		c.Scheduler.BaseURL = "https://qstash.upstash.io"
	}
	if c.Scheduler.Timeout <= 0 {
		c.Scheduler.Timeout = 15 * time.Second
	}
	if c.Queue.URL == "" {
		c.Queue.URL = "nats://127.0.0.1:4222"
	}
	if c.Queue.Stream == "" {
		c.Queue.Stream = "WORKFLOWS"
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "gpt-4o"
	}
	if c.Generation.Timeout <= 0 {
		c.Generation.Timeout = 120 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that required fields are set.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("config: database.url is required (set NOTRA_DATABASE_URL)")
	}
	if c.Scheduler.CallbackURL == "" {
		return fmt.Errorf("config: scheduler.callback_url is required (set NOTRA_CALLBACK_URL)")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
