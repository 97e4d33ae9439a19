package main

import (
	"fmt"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Host        string
	Port        int
	Environment string
	LogLevel    string

	// Relay settings
	APIKey      string
	HMACSecret  string
	SendTimeout time.Duration

	// Validation policy
	MaxSubjectLength   int
	MaxAttachmentBytes int64
	MaxTotalBytes      int64

	// Sender identity
	SenderName    string
	SenderAddress string

	// Mail settings
	MailProvider string

	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string
	SMTPMaxConnections int
	SMTPMaxMessages    int
	SMTPMinInterval    time.Duration

	PostmarkServerToken  string
	PostmarkAccountToken string

	SESRegion          string
	SESAccessKeyID     string
	SESSecretAccessKey string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// LoadConfig loads configuration from environment variables.
func LoadConfig(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		// Server settings
		Host:        envString(getenv, "SERVER_HOST", "localhost"),
		Port:        envInt(getenv, "SERVER_PORT", 8080),
		Environment: envString(getenv, "ENVIRONMENT", "dev"),
		LogLevel:    envString(getenv, "LOG_LEVEL", "info"),

		// Relay settings. API_KEY has no default on purpose: a missing
		// secret is reported per-request as a configuration error.
		APIKey:      getenv("API_KEY"),
		HMACSecret:  getenv("HMAC_SECRET"),
		SendTimeout: envDuration(getenv, "SEND_TIMEOUT", 90*time.Second),

		// Validation policy
		MaxSubjectLength:   envInt(getenv, "MAX_SUBJECT_LENGTH", 200),
		MaxAttachmentBytes: envBytes(getenv, "MAX_ATTACHMENT_MB", 10),
		MaxTotalBytes:      envBytes(getenv, "MAX_TOTAL_MB", 15),

		// Sender identity
		SenderName:    envString(getenv, "SENDER_NAME", "Trail Intercasteller"),
		SenderAddress: envString(getenv, "SENDER_ADDRESS", ""),

		// Mail settings
		MailProvider: envString(getenv, "MAIL_PROVIDER", "mock"),

		SMTPHost:           envString(getenv, "SMTP_HOST", "smtp.strato.de"),
		SMTPPort:           envInt(getenv, "SMTP_PORT", 465),
		SMTPUsername:       getenv("SMTP_USER"),
		SMTPPassword:       getenv("SMTP_PASSWORD"),
		SMTPMaxConnections: envInt(getenv, "SMTP_MAX_CONNECTIONS", 3),
		SMTPMaxMessages:    envInt(getenv, "SMTP_MAX_MESSAGES", 50),
		SMTPMinInterval:    envDuration(getenv, "SMTP_MIN_INTERVAL", 10*time.Second),

		PostmarkServerToken:  getenv("POSTMARK_SERVER_TOKEN"),
		PostmarkAccountToken: getenv("POSTMARK_ACCOUNT_TOKEN"),

		SESRegion:          envString(getenv, "SES_REGION", "eu-west-1"),
		SESAccessKeyID:     getenv("SES_ACCESS_KEY_ID"),
		SESSecretAccessKey: getenv("SES_SECRET_ACCESS_KEY"),

		// Rate limiting
		RateLimitRequests: envInt(getenv, "RATE_LIMIT_REQUESTS", 30),
		RateLimitWindow:   envDuration(getenv, "RATE_LIMIT_WINDOW", 60*time.Second),
	}

	// The SMTP username doubles as the sender address, the way the
	// original Strato deployment was wired.
	if cfg.SenderAddress == "" {
		cfg.SenderAddress = cfg.SMTPUsername
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Production reports whether signature enforcement applies.
func (c *Config) Production() bool {
	return c.Environment == "prod" || c.Environment == "production"
}

// validate rejects configurations that could never serve. Missing
// per-request secrets are deliberately not fatal here: the server still
// boots so health endpoints respond, and the relay endpoint answers with
// a configuration error.
func (c *Config) validate() error {
	switch c.MailProvider {
	case "smtp", "postmark", "ses", "mock":
	default:
		return fmt.Errorf("unknown MAIL_PROVIDER %q", c.MailProvider)
	}
	if c.MaxAttachmentBytes > c.MaxTotalBytes {
		return fmt.Errorf("MAX_ATTACHMENT_MB exceeds MAX_TOTAL_MB")
	}
	return nil
}

// Helper functions for loading environment variables with defaults.

func envString(getenv func(string) string, key, defaultValue string) string {
	if value := getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(getenv func(string) string, key string, defaultValue int) int {
	if value := getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func envBytes(getenv func(string) string, key string, defaultMB int64) int64 {
	if value := getenv(key); value != "" {
		if mb, err := strconv.ParseInt(value, 10, 64); err == nil && mb > 0 {
			return mb * 1024 * 1024
		}
	}
	return defaultMB * 1024 * 1024
}

func envDuration(getenv func(string) string, key string, defaultValue time.Duration) time.Duration {
	if value := getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
