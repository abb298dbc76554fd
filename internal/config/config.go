// Package config handles layered YAML configuration with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all slidescope configuration.
type Config struct {
	Server  Server  `yaml:"server"`
	Viewer  Viewer  `yaml:"viewer"`
	Session Session `yaml:"session"`
}

// Server holds image source settings.
type Server struct {
	Source  string        `yaml:"source"`   // "http" | "synthetic"
	BaseURL string        `yaml:"base_url"` // webgateway root for the http source
	Timeout time.Duration `yaml:"timeout"`
}

// Viewer holds hover and cache settings.
type Viewer struct {
	SettleDelay   time.Duration `yaml:"settle_delay"`   // Pause before a hover query fires
	CacheLimit    int           `yaml:"cache_limit"`    // Channel values held across all planes
	MouseThrottle time.Duration `yaml:"mouse_throttle"` // Minimum gap between processed motion events
}

// Session holds per-image session persistence settings.
type Session struct {
	BaseDir string `yaml:"base_dir"`
	Restore bool   `yaml:"restore"` // Reapply saved plane/channel state on open
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: Server{
			Source:  "synthetic",
			Timeout: 10 * time.Second,
		},
		Viewer: Viewer{
			SettleDelay:   500 * time.Millisecond,
			CacheLimit:    1_000_000,
			MouseThrottle: 16 * time.Millisecond,
		},
		Session: Session{
			BaseDir: ".slidescope/sessions",
			Restore: true,
		},
	}
}

// Load reads a single YAML config file at path and returns a Config.
// For merging multiple config sources, use LoadLayered instead.
// If the file does not exist, defaults are returned without error.
// If the file contains invalid YAML or unknown fields, an error is returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return &cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		// Comment-only YAML files produce EOF with no decoded content.
		if errors.Is(err, io.EOF) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &cfg, nil
}

// LoadLayered loads config from multiple paths with increasing priority.
// Later paths override earlier ones. Missing files are skipped.
func LoadLayered(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		layer, err := loadLayer(path)
		if err != nil {
			return nil, err
		}
		if layer == nil {
			continue
		}
		cfg.merge(layer)
	}

	return &cfg, nil
}

// Validate checks that config values are usable.
func (c *Config) Validate() error {
	switch c.Server.Source {
	case "http", "synthetic":
		// valid
	default:
		return fmt.Errorf("config: server.source must be \"http\" or \"synthetic\", got %q", c.Server.Source)
	}
	if c.Server.Source == "http" && c.Server.BaseURL == "" {
		return errors.New("config: server.base_url cannot be empty for the http source")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("config: server.timeout must be positive, got %v", c.Server.Timeout)
	}
	if c.Viewer.SettleDelay <= 0 {
		return fmt.Errorf("config: viewer.settle_delay must be positive, got %v", c.Viewer.SettleDelay)
	}
	if c.Viewer.CacheLimit <= 0 {
		return fmt.Errorf("config: viewer.cache_limit must be positive, got %d", c.Viewer.CacheLimit)
	}
	if c.Viewer.MouseThrottle < 0 {
		return fmt.Errorf("config: viewer.mouse_throttle must be non-negative, got %v", c.Viewer.MouseThrottle)
	}
	if c.Session.BaseDir == "" {
		return errors.New("config: session.base_dir cannot be empty")
	}
	return nil
}

// ApplyEnv applies environment variable overrides to the config.
// Supported variables: SLIDESCOPE_SOURCE, SLIDESCOPE_SERVER,
// SLIDESCOPE_TIMEOUT, SLIDESCOPE_SETTLE_DELAY, SLIDESCOPE_CACHE_LIMIT.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("SLIDESCOPE_SOURCE"); v != "" {
		c.Server.Source = v
	}
	if v := os.Getenv("SLIDESCOPE_SERVER"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("SLIDESCOPE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid SLIDESCOPE_TIMEOUT %q: %w", v, err)
		}
		c.Server.Timeout = d
	}
	if v := os.Getenv("SLIDESCOPE_SETTLE_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid SLIDESCOPE_SETTLE_DELAY %q: %w", v, err)
		}
		c.Viewer.SettleDelay = d
	}
	if v := os.Getenv("SLIDESCOPE_CACHE_LIMIT"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			return fmt.Errorf("config: invalid SLIDESCOPE_CACHE_LIMIT %q: %w", v, err)
		}
		c.Viewer.CacheLimit = n
	}
	return nil
}

// rawConfig mirrors Config but uses pointers to distinguish set vs unset fields.
type rawConfig struct {
	Server  *rawServer  `yaml:"server"`
	Viewer  *rawViewer  `yaml:"viewer"`
	Session *rawSession `yaml:"session"`
}

type rawServer struct {
	Source  *string        `yaml:"source"`
	BaseURL *string        `yaml:"base_url"`
	Timeout *time.Duration `yaml:"timeout"`
}

type rawViewer struct {
	SettleDelay   *time.Duration `yaml:"settle_delay"`
	CacheLimit    *int           `yaml:"cache_limit"`
	MouseThrottle *time.Duration `yaml:"mouse_throttle"`
}

type rawSession struct {
	BaseDir *string `yaml:"base_dir"`
	Restore *bool   `yaml:"restore"`
}

// loadLayer reads a single config file into a rawConfig for selective merging.
// Returns nil if the file does not exist. Rejects unknown fields.
func loadLayer(path string) (*rawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return nil, nil
	}

	var raw rawConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &raw, nil
}

// merge applies non-nil fields from a rawConfig layer onto this Config.
func (c *Config) merge(layer *rawConfig) {
	if layer.Server != nil {
		if layer.Server.Source != nil {
			c.Server.Source = *layer.Server.Source
		}
		if layer.Server.BaseURL != nil {
			c.Server.BaseURL = *layer.Server.BaseURL
		}
		if layer.Server.Timeout != nil {
			c.Server.Timeout = *layer.Server.Timeout
		}
	}
	if layer.Viewer != nil {
		if layer.Viewer.SettleDelay != nil {
			c.Viewer.SettleDelay = *layer.Viewer.SettleDelay
		}
		if layer.Viewer.CacheLimit != nil {
			c.Viewer.CacheLimit = *layer.Viewer.CacheLimit
		}
		if layer.Viewer.MouseThrottle != nil {
			c.Viewer.MouseThrottle = *layer.Viewer.MouseThrottle
		}
	}
	if layer.Session != nil {
		if layer.Session.BaseDir != nil {
			c.Session.BaseDir = *layer.Session.BaseDir
		}
		if layer.Session.Restore != nil {
			c.Session.Restore = *layer.Session.Restore
		}
	}
}
