// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/storehive/assist/internal/assistant"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	SiteHint    string

	RedisAddr       string
	RedisDB         int
	RedisCredential string
	AuthURL         string

	SessionTTL    time.Duration
	AdminTTL      time.Duration
	TypingTimeout time.Duration
	SweepInterval time.Duration

	Upstream      UpstreamConfig
	TranscriptLog assistant.TranscriptLogConfig
}

// UpstreamConfig holds the AI completion upstream settings.
type UpstreamConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("TRANSCRIPT_LOG_QUEUE_SIZE", 256)
	if queueSize <= 0 {
		queueSize = 256
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/assist.db"),
		SiteHint:    getEnv("SITE_HINT", ""),

		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		RedisCredential: getEnv("REDIS_CREDENTIAL", ""),
		AuthURL:         getEnv("AUTH_URL", ""),

		SessionTTL:    getEnvDuration("SESSION_TTL", 24*time.Hour),
		AdminTTL:      getEnvDuration("ADMIN_TTL", 24*time.Hour),
		TypingTimeout: getEnvDuration("TYPING_TIMEOUT", 3*time.Second),
		SweepInterval: getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),

		Upstream: UpstreamConfig{
			BaseURL: getEnv("GEMINI_BASE_URL", ""),
			APIKey:  getEnv("GEMINI_KEY", ""),
			Model:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		TranscriptLog: assistant.TranscriptLogConfig{
			Enabled:   getEnvBool("TRANSCRIPT_LOG_ENABLED", false),
			Dir:       getEnv("TRANSCRIPT_LOG_DIR", "./data/logs/transcripts"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.AdminTTL <= 0 {
		return fmt.Errorf("ADMIN_TTL must be > 0")
	}
	if c.TypingTimeout <= 0 {
		return fmt.Errorf("TYPING_TIMEOUT must be > 0")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	if c.TranscriptLog.Enabled && c.TranscriptLog.Dir == "" {
		return fmt.Errorf("TRANSCRIPT_LOG_DIR cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
