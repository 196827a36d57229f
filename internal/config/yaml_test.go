package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadYAMLMissingFile(t *testing.T) {
	cfg, err := LoadYAML(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Store.Driver != "sqlite" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywarden.yaml")
	content := `
server:
  port: 9090
  rate_limit_per_minute: 60
auth:
  cache_ttl: 90s
store:
  driver: pgx
  dsn: postgres://localhost/keywarden
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.RateLimitPerMin != 60 {
		t.Errorf("rate limit = %d, want 60", cfg.Server.RateLimitPerMin)
	}
	if cfg.Store.Driver != "pgx" || cfg.Store.DSN == "" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Auth.CacheTTLDuration() != 90*time.Second {
		t.Errorf("cache TTL = %v, want 90s", cfg.Auth.CacheTTLDuration())
	}
	// Unset sections keep their defaults.
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host = %q, want default", cfg.Server.Host)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("format = %q, want default", cfg.Logging.Format)
	}
}

func TestLoadYAMLMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: ["), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadYAML(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDurationFallbacks(t *testing.T) {
	if got := (AuthConfig{CacheTTL: "bogus"}).CacheTTLDuration(); got != 5*time.Minute {
		t.Errorf("malformed TTL = %v, want 5m fallback", got)
	}
	if got := (AuthConfig{}).CacheTTLDuration(); got != 5*time.Minute {
		t.Errorf("empty TTL = %v, want 5m fallback", got)
	}
	if got := (ServerConfig{ShutdownTimeout: "-3s"}).ShutdownTimeoutDuration(); got != 30*time.Second {
		t.Errorf("negative timeout = %v, want 30s fallback", got)
	}
}
