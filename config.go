package livesync

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	kiterr "github.com/knovault/go-live-sync/errors"
	"github.com/knovault/go-live-sync/logging"
)

const (
	// EnvServerHost derives the endpoint from a host when no explicit URL
	// is configured.
	EnvServerHost = "LIVESYNC_SERVER_HOST"

	// DefaultURL is the local development endpoint of last resort.
	DefaultURL = "ws://127.0.0.1:8765/ws"
)

// ResolveURL picks the sync endpoint with this precedence: explicit value
// (must carry a ws:// or wss:// scheme, otherwise it falls through), host
// from LIVESYNC_SERVER_HOST, hardcoded local default. An invalid explicit
// value is logged and skipped rather than failing hard.
func ResolveURL(explicit string) string {
	if explicit != "" {
		if strings.HasPrefix(explicit, "ws://") || strings.HasPrefix(explicit, "wss://") {
			return explicit
		}
		logging.Warn("configured sync URL has no ws:// or wss:// scheme, falling back")
	}
	if host := os.Getenv(EnvServerHost); host != "" {
		return "wss://" + host + "/ws"
	}
	return DefaultURL
}

// Config is the YAML-facing configuration. Durations are strings ("1s",
// "30s") and get parsed by Policy.
type Config struct {
	URL       string          `yaml:"url"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Store     StoreConfig     `yaml:"store"`
}

// ReconnectConfig mirrors ReconnectPolicy in its wire form.
type ReconnectConfig struct {
	// Enabled defaults to true when absent
	Enabled      *bool   `yaml:"enabled"`
	InitialDelay string  `yaml:"initial_delay"`
	MaxDelay     string  `yaml:"max_delay"`
	Multiplier   float64 `yaml:"multiplier"`
	MaxAttempts  int     `yaml:"max_attempts"`
}

// StoreConfig selects the conflict store backend.
type StoreConfig struct {
	// Backend is "memory", "sqlite", or "bolt"
	Backend string `yaml:"backend"`
	// Path of the database file for the durable backends
	Path string `yaml:"path"`
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if _, err := cfg.Policy(); err != nil {
		return nil, err
	}
	switch cfg.Store.Backend {
	case "", "memory", "sqlite", "bolt":
	default:
		return nil, kiterr.NewValidationError(kiterr.OpList,
			fmt.Errorf("unknown store backend %q", cfg.Store.Backend))
	}

	return &cfg, nil
}

// Policy parses the reconnect section into a ReconnectPolicy, applying the
// defaults for absent fields.
func (c *Config) Policy() (ReconnectPolicy, error) {
	policy := DefaultReconnectPolicy()

	if c.Reconnect.Enabled != nil {
		policy.Enabled = *c.Reconnect.Enabled
	}
	if c.Reconnect.InitialDelay != "" {
		d, err := time.ParseDuration(c.Reconnect.InitialDelay)
		if err != nil {
			return ReconnectPolicy{}, fmt.Errorf("invalid reconnect.initial_delay: %w", err)
		}
		policy.InitialDelay = d
	}
	if c.Reconnect.MaxDelay != "" {
		d, err := time.ParseDuration(c.Reconnect.MaxDelay)
		if err != nil {
			return ReconnectPolicy{}, fmt.Errorf("invalid reconnect.max_delay: %w", err)
		}
		policy.MaxDelay = d
	}
	if c.Reconnect.Multiplier > 0 {
		policy.Multiplier = c.Reconnect.Multiplier
	}
	if c.Reconnect.MaxAttempts > 0 {
		policy.MaxAttempts = c.Reconnect.MaxAttempts
	}

	if policy.InitialDelay > policy.MaxDelay {
		return ReconnectPolicy{}, fmt.Errorf("reconnect.initial_delay %v exceeds max_delay %v",
			policy.InitialDelay, policy.MaxDelay)
	}
	return policy, nil
}
