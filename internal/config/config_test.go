package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort == "" {
		t.Fatalf("expected default server port")
	}
	if cfg.PostgresURL == "" {
		t.Fatalf("expected default postgres url")
	}
	if cfg.StravaAPIURL == "" || cfg.StravaTokenURL == "" {
		t.Fatalf("expected default strava urls")
	}
	if cfg.SweepInterval != 15*time.Minute {
		t.Fatalf("unexpected sweep interval: %v", cfg.SweepInterval)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("POSTGRES_URL", "postgres://example")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_PASSWORD", "hunter2")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STRAVA_VERIFY_TOKEN", "verify-me")
	t.Setenv("APP_NAMESPACE", "entity-prod")
	t.Setenv("SWEEP_INTERVAL", "1h")

	cfg := Load()
	if cfg.ServerPort != ":9000" {
		t.Fatalf("expected override port")
	}
	if cfg.PostgresURL != "postgres://example" {
		t.Fatalf("expected override postgres")
	}
	if cfg.RedisAddr != "redis:6379" || cfg.RedisPassword != "hunter2" {
		t.Fatalf("expected override redis")
	}
	if cfg.JWTSecret != "secret" {
		t.Fatalf("expected override secret")
	}
	if cfg.StravaVerifyToken != "verify-me" {
		t.Fatalf("expected override verify token")
	}
	if cfg.AppNamespace != "entity-prod" {
		t.Fatalf("expected override namespace")
	}
	if cfg.SweepInterval != time.Hour {
		t.Fatalf("expected override sweep interval, got %v", cfg.SweepInterval)
	}
}
