package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the optional YAML file applied before the environment.
const ConfigFileEnv = "LEDGER_CONFIG_FILE"

const minJWTSecretLength = 32

type Config struct {
	// HTTP Server
	Port               string `yaml:"port"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`

	// Record store
	DataBackend    string `yaml:"data_backend"`
	SQLiteDBPath   string `yaml:"sqlite_db_path"`
	PostgresDSN    string `yaml:"postgres_dsn"`
	RedisURL       string `yaml:"redis_url"`
	RedisKeyPrefix string `yaml:"redis_key_prefix"`

	// AMQP
	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`
	AMQPQueue    string `yaml:"amqp_queue"`

	// Summary generation
	GeminiAPIKey     string        `yaml:"gemini_api_key"`
	GeminiModel      string        `yaml:"gemini_model"`
	SummaryTimeout   time.Duration `yaml:"summary_timeout"`
	SummaryCacheTTL  time.Duration `yaml:"summary_cache_ttl"`
	SummaryCacheSize int           `yaml:"summary_cache_size"`

	// Sessions and credentials
	JWTSecret            string        `yaml:"jwt_secret"`
	SessionTTL           time.Duration `yaml:"session_ttl"`
	SessionPurgeSchedule string        `yaml:"session_purge_schedule"`
	PasswordHashing      string        `yaml:"password_hashing"`

	// Attachments
	BlobBackend        string `yaml:"blob_backend"`
	S3Bucket           string `yaml:"s3_bucket"`
	S3Endpoint         string `yaml:"s3_endpoint"`
	S3Region           string `yaml:"s3_region"`
	S3UsePathStyle     bool   `yaml:"s3_use_path_style"`
	AttachmentMaxBytes int    `yaml:"attachment_max_bytes"`

	// Presentation
	CurrencySymbol string `yaml:"currency_symbol"`
	Timezone       string `yaml:"timezone"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

var (
	validBackends     = []string{"memory", "redis", "sqlite", "postgres"}
	validHashing      = []string{"bcrypt", "plaintext"}
	validBlobBackends = []string{"none", "memory", "s3"}
)

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Port:                 "8081",
		RateLimitPerMinute:   60,
		DataBackend:          "memory",
		SQLiteDBPath:         "./data/ledger.db",
		AMQPExchange:         "ledger",
		AMQPQueue:            "project_events",
		GeminiModel:          "gemini-3-flash-preview",
		SummaryTimeout:       20 * time.Second,
		SummaryCacheTTL:      30 * time.Minute,
		SummaryCacheSize:     200,
		SessionTTL:           12 * time.Hour,
		SessionPurgeSchedule: "@hourly",
		PasswordHashing:      "bcrypt",
		BlobBackend:          "none",
		S3Region:             "us-east-1",
		AttachmentMaxBytes:   5 << 20,
		CurrencySymbol:       "BDT ",
		Timezone:             "Local",
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

// Load layers defaults, then the YAML file named by LEDGER_CONFIG_FILE when
// set, then environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", c.RateLimitPerMinute)

	c.DataBackend = getEnv("DATA_BACKEND", c.DataBackend)
	c.SQLiteDBPath = getEnv("SQLITE_DB_PATH", c.SQLiteDBPath)
	c.PostgresDSN = getEnv("POSTGRES_DSN", c.PostgresDSN)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.RedisKeyPrefix = getEnv("REDIS_KEY_PREFIX", c.RedisKeyPrefix)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.AMQPQueue = getEnv("AMQP_QUEUE", c.AMQPQueue)

	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.GeminiModel = getEnv("GEMINI_MODEL", c.GeminiModel)
	c.SummaryTimeout = getEnvDuration("SUMMARY_TIMEOUT", c.SummaryTimeout)
	c.SummaryCacheTTL = getEnvDuration("SUMMARY_CACHE_TTL", c.SummaryCacheTTL)
	c.SummaryCacheSize = getEnvInt("SUMMARY_CACHE_SIZE", c.SummaryCacheSize)

	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.SessionTTL = getEnvDuration("SESSION_TTL", c.SessionTTL)
	c.SessionPurgeSchedule = getEnv("SESSION_PURGE_SCHEDULE", c.SessionPurgeSchedule)
	c.PasswordHashing = getEnv("PASSWORD_HASHING", c.PasswordHashing)

	c.BlobBackend = getEnv("BLOB_BACKEND", c.BlobBackend)
	c.S3Bucket = getEnv("S3_BUCKET", c.S3Bucket)
	c.S3Endpoint = getEnv("S3_ENDPOINT", c.S3Endpoint)
	c.S3Region = getEnv("S3_REGION", c.S3Region)
	c.S3UsePathStyle = getEnvBool("S3_USE_PATH_STYLE", c.S3UsePathStyle)
	c.AttachmentMaxBytes = getEnvInt("ATTACHMENT_MAX_BYTES", c.AttachmentMaxBytes)

	c.CurrencySymbol = getEnv("CURRENCY_SYMBOL", c.CurrencySymbol)
	c.Timezone = getEnv("TIMEZONE", c.Timezone)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	// Validate data backend
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "postgres":
		if c.PostgresDSN == "" {
			errors = append(errors, "POSTGRES_DSN is required when using postgres backend")
		}
	case "redis":
		if c.RedisURL == "" {
			errors = append(errors, "REDIS_URL is required when using redis backend")
		}
	}

	if c.RedisURL != "" {
		if parsedURL, err := url.Parse(c.RedisURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid Redis URL '%s': %v", c.RedisURL, err))
		} else if parsedURL.Scheme != "redis" && parsedURL.Scheme != "rediss" {
			errors = append(errors, fmt.Sprintf("invalid Redis URL scheme '%s': must be 'redis' or 'rediss'", parsedURL.Scheme))
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate summary generation
	if c.GeminiModel == "" {
		errors = append(errors, "Gemini model cannot be empty")
	}
	if c.SummaryTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid summary timeout %v: must be at least 1 second", c.SummaryTimeout))
	} else if c.SummaryTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid summary timeout %v: must be at most 5 minutes", c.SummaryTimeout))
	}
	if c.SummaryCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid summary cache size %d: must be at least 1", c.SummaryCacheSize))
	}

	// Validate sessions
	if c.JWTSecret == "" {
		if c.DataBackend != "memory" {
			errors = append(errors, "JWT_SECRET is required unless using memory backend")
		}
	} else if len(c.JWTSecret) < minJWTSecretLength {
		errors = append(errors, fmt.Sprintf("JWT secret too short: must be at least %d characters", minJWTSecretLength))
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}
	if _, err := cron.ParseStandard(c.SessionPurgeSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("invalid session purge schedule '%s': %v", c.SessionPurgeSchedule, err))
	}
	if !slices.Contains(validHashing, c.PasswordHashing) {
		errors = append(errors, fmt.Sprintf("invalid password hashing '%s': must be one of %v", c.PasswordHashing, validHashing))
	}

	// Validate attachments
	if !slices.Contains(validBlobBackends, c.BlobBackend) {
		errors = append(errors, fmt.Sprintf("invalid blob backend '%s': must be one of %v", c.BlobBackend, validBlobBackends))
	}
	if c.BlobBackend == "s3" && c.S3Bucket == "" {
		errors = append(errors, "S3 bucket is required when using s3 blob backend")
	}
	if c.AttachmentMaxBytes < 1 {
		errors = append(errors, fmt.Sprintf("invalid attachment size limit %d: must be at least 1 byte", c.AttachmentMaxBytes))
	} else if c.AttachmentMaxBytes > 50<<20 {
		errors = append(errors, fmt.Sprintf("invalid attachment size limit %d: must be at most 50 MiB", c.AttachmentMaxBytes))
	}

	if _, err := c.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Location resolves Timezone. "Local" and "" use the process zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.New("unknown time zone")
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
