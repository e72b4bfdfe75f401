package config

import (
	"strings"
	"testing"
	"time"
)

func baseConfig() *Config {
	return &Config{
		Env:                       "test",
		HTTPPort:                  "8080",
		SQLitePath:                ":memory:",
		JWTAccessSecret:           strings.Repeat("a", 32),
		JWTRefreshSecret:          strings.Repeat("b", 32),
		RefreshTokenPepper:        strings.Repeat("p", 16),
		VerificationSecret:        strings.Repeat("v", 32),
		JWTAccessTTL:              15 * time.Minute,
		JWTRefreshTTL:             168 * time.Hour,
		VerificationTTL:           5 * time.Minute,
		VerificationCooldown:      time.Minute,
		LockoutThreshold:          5,
		LockoutDuration:           2 * time.Hour,
		AuthRateLimitPerMin:       30,
		ForgotRateLimitPerMin:     5,
		APIRateLimitPerMin:        120,
		OTELExporterOTLPEndpoint:  "localhost:4317",
		OTELTraceSamplingRatio:    1,
		OTELMetricsExportInterval: 10 * time.Second,
		OTELLogLevel:              "info",
	}
}

func TestValidateAcceptsSaneConfig(t *testing.T) {
	if err := baseConfig().Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing database", func(c *Config) { c.SQLitePath = ""; c.DatabaseURL = "" }, "DATABASE_URL or SQLITE_PATH"},
		{"short access secret", func(c *Config) { c.JWTAccessSecret = "short" }, "JWT_ACCESS_SECRET"},
		{"equal secrets", func(c *Config) { c.JWTRefreshSecret = c.JWTAccessSecret }, "must differ"},
		{"short verification secret", func(c *Config) { c.VerificationSecret = "short" }, "VERIFICATION_SECRET"},
		{"cooldown exceeds window", func(c *Config) { c.VerificationCooldown = 10 * time.Minute }, "VERIFICATION_COOLDOWN"},
		{"zero lockout threshold", func(c *Config) { c.LockoutThreshold = 0 }, "LOCKOUT_THRESHOLD"},
		{"zero lockout duration", func(c *Config) { c.LockoutDuration = 0 }, "LOCKOUT_DURATION"},
		{"google without client id", func(c *Config) {
			c.AuthGoogleEnabled = true
			c.StateSigningSecret = strings.Repeat("s", 16)
			c.GoogleClientSecret = "secret"
		}, "GOOGLE_OAUTH_CLIENT_ID"},
		{"bad log level", func(c *Config) { c.OTELLogLevel = "verbose" }, "OTEL_LOG_LEVEL"},
	}
	for _, tc := range tests {
		cfg := baseConfig()
		tc.mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("SQLITE_PATH", ":memory:")
	t.Setenv("JWT_ACCESS_SECRET", strings.Repeat("a", 32))
	t.Setenv("JWT_REFRESH_SECRET", strings.Repeat("b", 32))
	t.Setenv("REFRESH_TOKEN_PEPPER", strings.Repeat("p", 16))
	t.Setenv("VERIFICATION_SECRET", strings.Repeat("v", 32))
	t.Setenv("AUTH_GOOGLE_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.VerificationTTL != 5*time.Minute {
		t.Fatalf("expected 5m verification window, got %v", cfg.VerificationTTL)
	}
	if cfg.VerificationCooldown != time.Minute {
		t.Fatalf("expected 60s resend cooldown, got %v", cfg.VerificationCooldown)
	}
	if cfg.LockoutThreshold != 5 || cfg.LockoutDuration != 2*time.Hour {
		t.Fatalf("unexpected lockout defaults: %d %v", cfg.LockoutThreshold, cfg.LockoutDuration)
	}
}
