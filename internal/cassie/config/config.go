// Package config loads the Cassie runtime configuration.
//
// Values resolve in three layers: compiled-in defaults, then an optional
// YAML file, then environment variables, with the environment winning. The
// defaults are a fully working single-binary setup (local SQLite, in-memory
// sessions, no LLM, no mailbox), so a bare `cassie serve` starts without any
// configuration at all.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration tree.
type Config struct {
	// DatabasePath is the SQLite database file.
	DatabasePath string `yaml:"database_path" env:"CASSIE_DB_PATH"`

	// HTTPAddr is the API server's listen address.
	HTTPAddr string `yaml:"http_addr" env:"CASSIE_HTTP_ADDR"`

	// APIToken guards the operator endpoints (ticket updates, FAQ and
	// manual management, reports). Empty disables authentication.
	APIToken string `yaml:"api_token" env:"CASSIE_API_TOKEN"`

	// Brand and SupportHours feed greetings and email signatures.
	Brand        string `yaml:"brand" env:"CASSIE_BRAND"`
	SupportHours string `yaml:"support_hours" env:"CASSIE_SUPPORT_HOURS"`

	// Timezone is the default zone for report queries that name local
	// days ("today", "last week").
	Timezone string `yaml:"timezone" env:"CASSIE_TIMEZONE"`

	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`

	Sessions SessionsConfig `yaml:"sessions"`
	LLM      LLMConfig      `yaml:"llm"`
	Mail     MailConfig     `yaml:"mail"`
	Digest   DigestConfig   `yaml:"digest"`
	Channels ChannelsConfig `yaml:"channels"`
}

// SessionsConfig selects and tunes the conversation-state store. With no
// Redis address the in-process memory store is used.
type SessionsConfig struct {
	TTLMinutes    int    `yaml:"ttl_minutes" env:"CASSIE_SESSION_TTL_MINUTES"`
	RedisAddr     string `yaml:"redis_addr" env:"CASSIE_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"CASSIE_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"CASSIE_REDIS_DB"`
}

// TTL returns the session time-to-live as a duration.
func (s SessionsConfig) TTL() time.Duration {
	return time.Duration(s.TTLMinutes) * time.Minute
}

// LLMConfig configures the optional advisor. An empty APIKey leaves the
// advisor disabled and the agent fully rule-driven.
type LLMConfig struct {
	APIKey    string `yaml:"api_key" env:"LLM_API_KEY"`
	BaseURL   string `yaml:"base_url" env:"LLM_BASE_URL"`
	Model     string `yaml:"model" env:"LLM_MODEL"`
	RateLimit int    `yaml:"rate_limit" env:"LLM_RATE_LIMIT"`
}

// Enabled reports whether an advisor provider should be constructed.
func (l LLMConfig) Enabled() bool {
	return l.APIKey != ""
}

// MailConfig configures the mailbox intake worker. An empty Address leaves
// the worker off.
type MailConfig struct {
	// Address is the support mailbox ("support@example.com"); it is both
	// the polled account and the From of acknowledgement emails.
	Address string `yaml:"address" env:"CASSIE_MAIL_ADDRESS"`

	// Token authenticates against the mail provider's REST API.
	Token string `yaml:"token" env:"CASSIE_MAIL_TOKEN"`

	// BaseURL overrides the provider endpoint, mainly for tests.
	BaseURL string `yaml:"base_url" env:"CASSIE_MAIL_BASE_URL"`

	// PollQuery selects which messages the worker fetches.
	PollQuery string `yaml:"poll_query" env:"CASSIE_MAIL_POLL_QUERY"`

	// PollIntervalSeconds is the delay between mailbox sweeps.
	PollIntervalSeconds int `yaml:"poll_interval_seconds" env:"CASSIE_MAIL_POLL_INTERVAL_SECONDS"`
}

// Enabled reports whether the mailbox worker should run.
func (m MailConfig) Enabled() bool {
	return m.Address != ""
}

// PollInterval returns the sweep delay as a duration.
func (m MailConfig) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalSeconds) * time.Second
}

// DigestConfig schedules the periodic ticket-summary digest. An empty Cron
// disables it.
type DigestConfig struct {
	// Cron is a standard five-field cron expression, evaluated in Timezone.
	Cron string `yaml:"cron" env:"CASSIE_DIGEST_CRON"`

	// Range is the report preset each digest covers ("today", "last7", ...).
	Range string `yaml:"range" env:"CASSIE_DIGEST_RANGE"`
}

// ChannelsConfig wires the optional chat transports.
type ChannelsConfig struct {
	Discord DiscordConfig `yaml:"discord"`
	Matrix  MatrixConfig  `yaml:"matrix"`
}

// DiscordConfig connects the Discord bot. An empty Token leaves it off.
type DiscordConfig struct {
	Token string `yaml:"token" env:"CASSIE_DISCORD_TOKEN"`
}

// MatrixConfig connects the Matrix bot. An empty Homeserver leaves it off.
type MatrixConfig struct {
	Homeserver  string `yaml:"homeserver" env:"CASSIE_MATRIX_HOMESERVER"`
	UserID      string `yaml:"user_id" env:"CASSIE_MATRIX_USER_ID"`
	AccessToken string `yaml:"access_token" env:"CASSIE_MATRIX_ACCESS_TOKEN"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		DatabasePath: "cassie_support.db",
		HTTPAddr:     ":8080",
		Brand:        "Cassie",
		SupportHours: "Mon-Fri 9:00-17:00",
		Timezone:     "Asia/Kolkata",
		LogLevel:     "info",
		LogFormat:    "text",
		Sessions: SessionsConfig{
			TTLMinutes: 30,
		},
		LLM: LLMConfig{
			Model: "llama-3.1-8b-instant",
		},
		Mail: MailConfig{
			PollQuery:           "is:unread -category:promotions",
			PollIntervalSeconds: 30,
		},
		Digest: DigestConfig{
			Range: "last7",
		},
	}
}

// Load resolves the configuration: defaults, then the YAML file at path
// (missing files are fine), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path must not be empty")
	}
	if c.Sessions.TTLMinutes <= 0 {
		return fmt.Errorf("sessions.ttl_minutes must be positive, got %d", c.Sessions.TTLMinutes)
	}
	if c.Mail.Enabled() && c.Mail.Token == "" {
		return fmt.Errorf("mail.token is required when mail.address is set")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the configured timezone. Load has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
