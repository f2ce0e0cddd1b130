// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Dispatch policy names accepted by DISPATCH_POLICY.
const (
	DispatchKeyword = "keyword"
	DispatchModel   = "model"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	AllowedOrigins []string
	DBPath         string
	StorageDir     string

	// JWTSecret verifies HS256 bearer tokens issued by the identity provider.
	JWTSecret string

	// AnthropicAPIKey is required when DispatchPolicy is "model"; the
	// keyword policy still needs it for specialist responses.
	AnthropicAPIKey string
	Model           string
	DispatchPolicy  string
	MaxModelTokens  int

	RateLimit RateLimitConfig
	Upload    UploadConfig
	Sweep     SweepConfig
	AuditLog  AuditLogConfig
}

// RateLimitConfig throttles chat turns per user.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// UploadConfig bounds file uploads.
type UploadConfig struct {
	MaxBytes     int64
	SignedURLTTL time.Duration
}

// SweepConfig controls the background maintenance sweeper.
type SweepConfig struct {
	Interval             time.Duration
	EmptyConversationTTL time.Duration
	DeletedFileTTL       time.Duration
}

// AuditLogConfig controls NDJSON interaction logging.
type AuditLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("AUDIT_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		FrontendURL:     getEnv("FRONTEND_URL", ""),
		AllowedOrigins:  splitList(getEnv("CORS_ORIGINS", "*")),
		DBPath:          getEnv("DB_PATH", "./data/ignacio.db"),
		StorageDir:      getEnv("STORAGE_DIR", "./data/files"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		Model:           getEnv("MODEL_NAME", "claude-sonnet-4-5-20250929"),
		DispatchPolicy:  getEnv("DISPATCH_POLICY", DispatchKeyword),
		MaxModelTokens:  getEnvInt("MAX_MODEL_TOKENS", 4096),
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Upload: UploadConfig{
			MaxBytes:     int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
			SignedURLTTL: getEnvDuration("SIGNED_URL_TTL", 15*time.Minute),
		},
		Sweep: SweepConfig{
			Interval:             getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
			EmptyConversationTTL: getEnvDuration("EMPTY_CONVERSATION_TTL", 24*time.Hour),
			DeletedFileTTL:       getEnvDuration("DELETED_FILE_TTL", 24*time.Hour),
		},
		AuditLog: AuditLogConfig{
			Enabled:   getEnvBool("AUDIT_LOG_ENABLED", true),
			Dir:       getEnv("AUDIT_LOG_DIR", "./data/logs/interactions"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
// Missing required values fail startup immediately.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.StorageDir == "" {
		return fmt.Errorf("STORAGE_DIR cannot be empty")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.DispatchPolicy != DispatchKeyword && c.DispatchPolicy != DispatchModel {
		return fmt.Errorf("DISPATCH_POLICY must be %q or %q, got %q",
			DispatchKeyword, DispatchModel, c.DispatchPolicy)
	}
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	if c.MaxModelTokens <= 0 {
		return fmt.Errorf("MAX_MODEL_TOKENS must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be > 0")
	}
	if c.AuditLog.Enabled && c.AuditLog.Dir == "" {
		return fmt.Errorf("AUDIT_LOG_DIR cannot be empty when audit logging is enabled")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
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
