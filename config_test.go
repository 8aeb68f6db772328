package livesync

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestResolveURLExplicit(t *testing.T) {
	t.Setenv(EnvServerHost, "")

	if got := ResolveURL("wss://sync.example.com/ws"); got != "wss://sync.example.com/ws" {
		t.Errorf("explicit URL not honored: %q", got)
	}
	if got := ResolveURL("ws://localhost:9000/ws"); got != "ws://localhost:9000/ws" {
		t.Errorf("explicit ws URL not honored: %q", got)
	}
}

func TestResolveURLBadSchemeFallsThrough(t *testing.T) {
	t.Setenv(EnvServerHost, "sync.example.com")

	if got := ResolveURL("https://sync.example.com/ws"); got != "wss://sync.example.com/ws" {
		t.Errorf("expected fallthrough to env host, got %q", got)
	}
}

func TestResolveURLEnvHost(t *testing.T) {
	t.Setenv(EnvServerHost, "sync.internal:8765")

	if got := ResolveURL(""); got != "wss://sync.internal:8765/ws" {
		t.Errorf("env host not used: %q", got)
	}
}

func TestResolveURLDefault(t *testing.T) {
	t.Setenv(EnvServerHost, "")

	if got := ResolveURL(""); got != DefaultURL {
		t.Errorf("expected default URL, got %q", got)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "livesync.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
url: wss://sync.example.com/ws
reconnect:
  enabled: true
  initial_delay: 500ms
  max_delay: 10s
  multiplier: 1.5
  max_attempts: 8
store:
  backend: sqlite
  path: /tmp/conflicts.db
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.URL != "wss://sync.example.com/ws" {
		t.Errorf("unexpected url: %q", cfg.URL)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.Path != "/tmp/conflicts.db" {
		t.Errorf("unexpected store config: %+v", cfg.Store)
	}

	policy, err := cfg.Policy()
	if err != nil {
		t.Fatalf("Policy failed: %v", err)
	}
	if policy.InitialDelay != 500*time.Millisecond || policy.MaxDelay != 10*time.Second {
		t.Errorf("unexpected delays: %+v", policy)
	}
	if policy.Multiplier != 1.5 || policy.MaxAttempts != 8 {
		t.Errorf("unexpected curve: %+v", policy)
	}
	if !policy.Enabled {
		t.Error("expected reconnection enabled")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "url: ws://localhost:8765/ws\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	policy, err := cfg.Policy()
	if err != nil {
		t.Fatalf("Policy failed: %v", err)
	}
	if policy != DefaultReconnectPolicy() {
		t.Errorf("expected default policy, got %+v", policy)
	}
}

func TestLoadConfigDisabledReconnect(t *testing.T) {
	path := writeConfig(t, `
reconnect:
  enabled: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	policy, err := cfg.Policy()
	if err != nil {
		t.Fatalf("Policy failed: %v", err)
	}
	if policy.Enabled {
		t.Error("expected reconnection disabled")
	}
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad yaml", "url: [unclosed"},
		{"bad duration", "reconnect:\n  initial_delay: soon\n"},
		{"initial exceeds max", "reconnect:\n  initial_delay: 1m\n  max_delay: 10s\n"},
		{"unknown backend", "store:\n  backend: redis\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			if _, err := LoadConfig(path); err == nil {
				t.Errorf("expected error for %s", tc.name)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
