// Package config loads engine configuration from config.yaml with
// environment variable overrides. Secrets (passwords, API keys) are
// env-only and never read from YAML.
package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for reportai-engine.
// Environment variables always override YAML values.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// AppNamespace prefixes every cache key, separating environments that
	// share a Redis instance.
	AppNamespace string `yaml:"app_namespace" env:"APP_NAMESPACE" env-default:"reportai"`

	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	LLM      LLMConfig      `yaml:"llm"`
	Auth     AuthConfig     `yaml:"auth"`
	Chat     ChatConfig     `yaml:"chat"`
	Staging  StagingConfig  `yaml:"staging"`
	Upload   UploadConfig   `yaml:"upload"`
}

// DatabaseConfig holds PostgreSQL configuration for the system of record.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"reportai"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"reportai"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration for the TTL cache.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// StorageConfig holds object storage configuration for uploaded files.
type StorageConfig struct {
	Bucket string `yaml:"bucket" env:"STORAGE_BUCKET" env-default:"reportai-uploads"`
	// Prefix is prepended to every object key, e.g. "uploads".
	Prefix string `yaml:"prefix" env:"STORAGE_PREFIX" env-default:"uploads"`
}

// LLMConfig holds configuration for the hosted LLM collaborator.
type LLMConfig struct {
	// Provider selects the client implementation: "openai" (any
	// OpenAI-compatible endpoint) or "anthropic".
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model    string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o"`
	APIKey   string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	// MaxTokens caps a single completion response.
	MaxTokens int `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"2000"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// JWTSecret signs access tokens. Server refuses to start without it
	// outside local env.
	JWTSecret string `yaml:"-" env:"JWT_SECRET"` // Secret - not in YAML
	// AccessTokenTTLMinutes is the lifetime of an access token.
	AccessTokenTTLMinutes int `yaml:"access_token_ttl_minutes" env:"ACCESS_TOKEN_TTL_MINUTES" env-default:"30"`
	// SessionTTLHours is the lifetime of a Redis-backed auth session.
	SessionTTLHours int `yaml:"session_ttl_hours" env:"SESSION_TTL_HOURS" env-default:"168"`
}

// ChatConfig holds chat session cache settings.
type ChatConfig struct {
	// MaxSessionTokens is the ceiling on cached conversation tokens per
	// session. The chat route refuses new messages past this.
	MaxSessionTokens int `yaml:"max_session_tokens" env:"CHAT_MAX_SESSION_TOKENS" env-default:"50000"`
}

// StagingConfig holds TTLs for staged extractions and updates.
type StagingConfig struct {
	// ExtractionTTLMinutes is how long a fresh schema extraction is staged.
	ExtractionTTLMinutes int `yaml:"extraction_ttl_minutes" env:"STAGING_EXTRACTION_TTL_MINUTES" env-default:"30"`
	// UpdateTTLMinutes is how long a staged update proposal survives.
	UpdateTTLMinutes int `yaml:"update_ttl_minutes" env:"STAGING_UPDATE_TTL_MINUTES" env-default:"60"`
}

// UploadConfig holds limits for uploaded data source files.
type UploadConfig struct {
	// MaxFileSizeMB caps the size of CSV/XLSX uploads.
	MaxFileSizeMB int `yaml:"max_file_size_mb" env:"UPLOAD_MAX_FILE_SIZE_MB" env-default:"50"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate rejects configurations that would misbehave at runtime rather
// than at startup.
func (c *Config) validate() error {
	if c.Chat.MaxSessionTokens <= 0 {
		return fmt.Errorf("chat.max_session_tokens must be positive, got %d", c.Chat.MaxSessionTokens)
	}
	if c.Staging.ExtractionTTLMinutes <= 0 || c.Staging.UpdateTTLMinutes <= 0 {
		return fmt.Errorf("staging TTLs must be positive")
	}
	if c.Env != "local" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required outside local environment")
	}
	return nil
}
