// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	FrontendURL     string
	DBPath          string
	OTPExpiry       time.Duration
	ConversationTTL time.Duration
	SMTP            SMTPConfig
	LLM             LLMConfig
	ConversationLog ConversationLogConfig
}

// SMTPConfig carries passcode email delivery settings. An empty Server means
// passcodes are logged instead of mailed.
type SMTPConfig struct {
	Server   string
	Port     int
	Sender   string
	Password string
}

// LLMConfig carries the optional Gemini selector settings. An empty APIKey
// means the rule-based selector runs alone.
type LLMConfig struct {
	APIKey string
	Model  string
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		FrontendURL:     getEnv("FRONTEND_URL", ""),
		DBPath:          getEnv("DB_PATH", "./data/accounts.db"),
		OTPExpiry:       time.Duration(getEnvInt("OTP_EXPIRY_MINUTES", 5)) * time.Minute,
		ConversationTTL: time.Duration(getEnvInt("CONVERSATION_TTL_MINUTES", 60)) * time.Minute,
		SMTP: SMTPConfig{
			Server:   getEnv("SMTP_SERVER", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			Sender:   getEnv("EMAIL_SENDER", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
		},
		LLM: LLMConfig{
			APIKey: getEnv("GOOGLE_API_KEY", ""),
			Model:  getEnv("LLM_MODEL", "gemini-1.5-flash"),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:       getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
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
	if c.OTPExpiry <= 0 {
		return fmt.Errorf("OTP_EXPIRY_MINUTES must be > 0")
	}
	if c.ConversationTTL <= 0 {
		return fmt.Errorf("CONVERSATION_TTL_MINUTES must be > 0")
	}
	if c.SMTP.Server != "" {
		if c.SMTP.Sender == "" {
			return fmt.Errorf("EMAIL_SENDER is required when SMTP_SERVER is set")
		}
		if c.SMTP.Port <= 0 {
			return fmt.Errorf("SMTP_PORT must be > 0")
		}
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
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
