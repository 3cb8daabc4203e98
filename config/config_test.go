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
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "http:\n  addr: \":5000\"\n")

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Service != "collab-service" || cfg.Logging.Env != "dev" {
		t.Fatalf("logging defaults not applied: %+v", cfg.Logging)
	}
	if cfg.Collab.PingInterval != 30*time.Second {
		t.Fatalf("ping interval default not applied: %v", cfg.Collab.PingInterval)
	}
	if cfg.Collab.StaleThreshold != 2*time.Minute {
		t.Fatalf("stale threshold default not applied: %v", cfg.Collab.StaleThreshold)
	}
	if cfg.Collab.MaxMessageBytes != 1<<20 {
		t.Fatalf("max message bytes default not applied: %v", cfg.Collab.MaxMessageBytes)
	}
}

func TestLoadConfigParsesDurations(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":5000"
collab:
  ping_interval: 15s
  stale_threshold: 90s
`)

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Collab.PingInterval != 15*time.Second {
		t.Fatalf("ping interval not parsed: %v", cfg.Collab.PingInterval)
	}
	if cfg.Collab.StaleThreshold != 90*time.Second {
		t.Fatalf("stale threshold not parsed: %v", cfg.Collab.StaleThreshold)
	}
}

func TestLoadConfigRejectsMalformedDuration(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":5000"
collab:
  ping_interval: "30 sec"
`)

	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("malformed duration must fail, not fall back to the default")
	}

	path = writeConfig(t, `
http:
  addr: ":5000"
collab:
  stale_threshold: "-1m"
`)

	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("non-positive duration must fail")
	}
}

func TestLoadConfigRequiresHTTPAddr(t *testing.T) {
	path := writeConfig(t, "logging:\n  env: dev\n")

	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("expected error for missing http.addr")
	}
}
