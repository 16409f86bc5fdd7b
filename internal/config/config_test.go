package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if errWrite := os.WriteFile(path, []byte(body), 0o600); errWrite != nil {
		t.Fatalf("write config: %v", errWrite)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "database:\n  dsn: vitalscope.db\n")

	cfg, errLoad := Load(path)
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if cfg.Server.Addr != ":8318" {
		t.Fatalf("default addr not applied: %q", cfg.Server.Addr)
	}
	if cfg.Auth.TokenExpiry.Std() != 24*time.Hour {
		t.Fatalf("default token expiry not applied: %v", cfg.Auth.TokenExpiry)
	}
	if cfg.Billing.ProviderQPS != 5 {
		t.Fatalf("default provider qps not applied: %v", cfg.Billing.ProviderQPS)
	}
	if cfg.Production {
		t.Fatalf("production should default to false")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
database:
  dsn: postgres://vitalscope@localhost/vitalscope
billing:
  webhook-secret: whsec_abc
  provider-url: https://billing.example.com
  provider-qps: 2
auth:
  jwt-secret: s3cret
  token-expiry: 1h
production: true
`)

	cfg, errLoad := Load(path)
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("addr override lost: %q", cfg.Server.Addr)
	}
	if cfg.Billing.WebhookSecret != "whsec_abc" || cfg.Billing.ProviderQPS != 2 {
		t.Fatalf("billing override lost: %+v", cfg.Billing)
	}
	if cfg.Auth.TokenExpiry.Std() != time.Hour {
		t.Fatalf("token expiry override lost: %v", cfg.Auth.TokenExpiry)
	}
	if !cfg.Production {
		t.Fatalf("production override lost")
	}
}

func TestLoadRequiresDSN(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: ':9000'\n")
	if _, errLoad := Load(path); errLoad == nil {
		t.Fatalf("expected error for missing dsn")
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("explicit.yaml"); got != "explicit.yaml" {
		t.Fatalf("explicit path should win, got %q", got)
	}

	t.Setenv(EnvConfigPath, "/etc/vitalscope/config.yaml")
	if got := ResolvePath(""); got != "/etc/vitalscope/config.yaml" {
		t.Fatalf("env override should apply, got %q", got)
	}

	t.Setenv(EnvConfigPath, "")
	if got := ResolvePath(""); got != "config.yaml" {
		t.Fatalf("default path should apply, got %q", got)
	}
}
