// Package config loads the Holvi service configuration from a YAML
// file with environment-variable overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Worklet WorkletConfig `yaml:"worklet"`
	Harvest HarvestConfig `yaml:"harvest"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig covers the HTTP listener.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// StoreConfig covers the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path"`
	// ExposeReads gates GET /api/v1/store/{key}. Shared storage is
	// write-only from the outside; single-key reads exist for operator
	// debugging and stay off unless explicitly enabled.
	ExposeReads bool `yaml:"expose_reads"`
}

// WorkletConfig covers operation execution.
type WorkletConfig struct {
	// BeaconBase overrides the collector URL select-char-at candidates
	// point at. Empty means the built-in default. select-url is fixed
	// and ignores this.
	BeaconBase string `yaml:"beacon_base"`
}

// HarvestConfig covers the background reassembly loop.
type HarvestConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
	Key      string   `yaml:"key"`
	MaxLen   int      `yaml:"max_len"`
}

// Duration is a time.Duration that unmarshals from YAML strings like
// "500ms" or "5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LogConfig covers the zap logger.
type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
	Dev   bool   `yaml:"dev"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{ListenAddr: ":8080"},
		Store:   StoreConfig{Path: "holvi.db"},
		Harvest: HarvestConfig{Interval: Duration(5 * time.Second), Key: "flag", MaxLen: 64},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads path (optional: "" means defaults only), applies
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers HOLVI_* environment variables over cfg.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("HOLVI_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("HOLVI_DB_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("HOLVI_EXPOSE_READS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: parse HOLVI_EXPOSE_READS %q: %w", v, err)
		}
		cfg.Store.ExposeReads = b
	}
	if v := os.Getenv("HOLVI_BEACON_BASE"); v != "" {
		cfg.Worklet.BeaconBase = v
	}
	if v := os.Getenv("HOLVI_HARVEST_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: parse HOLVI_HARVEST_ENABLED %q: %w", v, err)
		}
		cfg.Harvest.Enabled = b
	}
	if v := os.Getenv("HOLVI_HARVEST_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: parse HOLVI_HARVEST_INTERVAL %q: %w", v, err)
		}
		cfg.Harvest.Interval = Duration(d)
	}
	if v := os.Getenv("HOLVI_HARVEST_KEY"); v != "" {
		cfg.Harvest.Key = v
	}
	if v := os.Getenv("HOLVI_HARVEST_MAX_LEN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: parse HOLVI_HARVEST_MAX_LEN %q: %w", v, err)
		}
		cfg.Harvest.MaxLen = n
	}
	if v := os.Getenv("HOLVI_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("config: server.listen_addr must not be empty")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("config: store.path must not be empty")
	}
	if c.Worklet.BeaconBase != "" {
		u, err := url.Parse(c.Worklet.BeaconBase)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: worklet.beacon_base %q is not an absolute URL", c.Worklet.BeaconBase)
		}
	}
	if c.Harvest.Enabled {
		if c.Harvest.Interval <= 0 {
			return fmt.Errorf("config: harvest.interval must be positive")
		}
		if c.Harvest.Key == "" {
			return fmt.Errorf("config: harvest.key must not be empty")
		}
		if c.Harvest.MaxLen < 1 {
			return fmt.Errorf("config: harvest.max_len must be at least 1")
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is not one of debug|info|warn|error", c.Log.Level)
	}
	return nil
}
