package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.Database.Path != "dailyflow.db" {
		t.Fatalf("unexpected defaults %+v %+v", cfg.HTTP, cfg.Database)
	}
	if cfg.Notifications.DismissAfter != 10*time.Second {
		t.Fatalf("DismissAfter = %v", cfg.Notifications.DismissAfter)
	}
	if cfg.Auth.TokenTTL != 7*24*time.Hour {
		t.Fatalf("TokenTTL = %v", cfg.Auth.TokenTTL)
	}
	if !cfg.Reminders.Enabled || !cfg.Reminders.RefetchOnFire || cfg.Reminders.Resync != "@every 5m" {
		t.Fatalf("Reminders = %+v", cfg.Reminders)
	}
	if cfg.Mail.Port != 587 || cfg.Mail.Timezone != "Asia/Dhaka" {
		t.Fatalf("Mail = %+v", cfg.Mail)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dailyflow.yaml")
	yaml := strings.Join([]string{
		"http:",
		"  addr: \":9090\"",
		"reminders:",
		"  workers: 2",
		"  session_idle: 90m",
		"webhook:",
		"  url: https://hooks.example.com/reminders",
		"  headers:",
		"    X-Token: abc",
	}, "\n")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EMAIL_USER", "reminders@example.com")
	t.Setenv("EMAIL_PORT", "465")
	t.Setenv("EMAIL_SECURE", "true")
	t.Setenv("JWT_SECRET", "legacy-secret")
	t.Setenv("DAILYFLOW_AUTH__JWT_SECRET", "prefixed-secret")
	t.Setenv("DAILYFLOW_LOG__LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" || cfg.Reminders.Workers != 2 || cfg.Reminders.SessionIdle != 90*time.Minute {
		t.Fatalf("file values not applied: %+v %+v", cfg.HTTP, cfg.Reminders)
	}
	if cfg.Webhook.URL != "https://hooks.example.com/reminders" || cfg.Webhook.Headers["X-Token"] != "abc" {
		t.Fatalf("Webhook = %+v", cfg.Webhook)
	}
	if cfg.Mail.User != "reminders@example.com" || cfg.Mail.Port != 465 || !cfg.Mail.Secure {
		t.Fatalf("legacy env not applied: %+v", cfg.Mail)
	}
	if cfg.Auth.JWTSecret != "prefixed-secret" {
		t.Fatalf("JWTSecret = %q, prefixed env should win", cfg.Auth.JWTSecret)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestMissingFileIsIgnored(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		cfg.Auth.JWTSecret = "s"
		return cfg
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("Validate defaults: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"no workers", func(c *Config) { c.Reminders.Workers = 0 }},
		{"negative rate", func(c *Config) { c.Reminders.RatePerSec = -1 }},
		{"bad resync", func(c *Config) { c.Reminders.Resync = "sometimes" }},
		{"bad port", func(c *Config) { c.Mail.Port = 70000 }},
		{"bad timezone", func(c *Config) { c.Mail.Timezone = "Mars/Olympus" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
