package config

import (
	"strings"
	"testing"
	"time"
)

func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
}

func TestLoadDefaults(t *testing.T) {
	validEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.DispatchPolicy != DispatchKeyword {
		t.Errorf("DispatchPolicy = %q, want keyword default", cfg.DispatchPolicy)
	}
	if cfg.RateLimit.WindowDuration != time.Minute {
		t.Errorf("RateLimit.WindowDuration = %v", cfg.RateLimit.WindowDuration)
	}
	if cfg.Upload.MaxBytes != 10<<20 {
		t.Errorf("Upload.MaxBytes = %d", cfg.Upload.MaxBytes)
	}
	if !cfg.AuditLog.Enabled {
		t.Error("audit logging should default on")
	}
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Errorf("Load without JWT_SECRET err = %v", err)
	}

	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "ANTHROPIC_API_KEY") {
		t.Errorf("Load without ANTHROPIC_API_KEY err = %v", err)
	}
}

func TestLoadRejectsUnknownDispatchPolicy(t *testing.T) {
	validEnv(t)
	t.Setenv("DISPATCH_POLICY", "coin-flip")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "DISPATCH_POLICY") {
		t.Errorf("Load with bad policy err = %v", err)
	}
}

func TestLoadParsesDurationsAndLists(t *testing.T) {
	validEnv(t)
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("CORS_ORIGINS", "https://app.example.com, https://staging.example.com")
	t.Setenv("DISPATCH_POLICY", DispatchModel)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RateLimit.WindowDuration != 30*time.Second {
		t.Errorf("WindowDuration = %v", cfg.RateLimit.WindowDuration)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://staging.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.DispatchPolicy != DispatchModel {
		t.Errorf("DispatchPolicy = %q", cfg.DispatchPolicy)
	}
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{FrontendURL: "http://localhost:3000"}
	if !cfg.IsDevelopment() {
		t.Error("localhost frontend should count as development")
	}
	cfg.FrontendURL = "https://app.example.com"
	if cfg.IsDevelopment() {
		t.Error("production frontend should not count as development")
	}
}
