// Package config loads the gateway configuration from YAML. Missing keys
// keep their defaults, so a partial file is always usable.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orbtap/orb-gateway/internal/indicator"
	"github.com/orbtap/orb-gateway/internal/proximity"
)

// Duration wraps time.Duration so YAML accepts values like "5s" or "1m30s".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back in its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the wrapped time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config is the full gateway configuration.
type Config struct {
	Broker    string   `yaml:"broker"`
	HTTPAddr  string   `yaml:"http_addr"` // empty disables the HTTP server
	DBPath    string   `yaml:"db_path"`
	Heartbeat Duration `yaml:"heartbeat"` // 0 disables heartbeats

	Proximity ProximityConfig `yaml:"proximity"`
	Indicator IndicatorConfig `yaml:"indicator"`
}

// ProximityConfig holds the zone classifier settings.
type ProximityConfig struct {
	ClaimThreshold  int      `yaml:"claim_threshold"`
	NearThreshold   int      `yaml:"near_threshold"`
	ClaimCooldown   Duration `yaml:"claim_cooldown"`
	NearCooldown    Duration `yaml:"near_cooldown"`
	MaxTrackedPeers int      `yaml:"max_tracked_peers"`
	MinStrength     int      `yaml:"min_strength"`
	MaxStrength     int      `yaml:"max_strength"`
}

// IndicatorConfig holds the GPIO indicator settings.
type IndicatorConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Chip     string `yaml:"chip"`
	NearPin  int    `yaml:"near_pin"`
	ClaimPin int    `yaml:"claim_pin"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Broker:    "tcp://localhost:1883",
		HTTPAddr:  ":8090",
		DBPath:    "/var/lib/orb-gateway/ledger.db",
		Heartbeat: Duration(60 * time.Second),
		Proximity: ProximityConfig{
			ClaimThreshold:  -20,
			NearThreshold:   -60,
			ClaimCooldown:   Duration(5 * time.Second),
			NearCooldown:    Duration(3 * time.Second),
			MaxTrackedPeers: 64,
			MinStrength:     -120,
			MaxStrength:     0,
		},
		Indicator: IndicatorConfig{
			Enabled:  true,
			Chip:     indicator.DefaultChip,
			NearPin:  indicator.PinNear,
			ClaimPin: indicator.PinClaim,
		},
	}
}

// Load reads the YAML file at path on top of the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Classifier converts the proximity section into the classifier's config.
func (p ProximityConfig) Classifier() proximity.Config {
	return proximity.Config{
		ClaimThreshold: p.ClaimThreshold,
		NearThreshold:  p.NearThreshold,
		ClaimCooldown:  p.ClaimCooldown.Duration(),
		NearCooldown:   p.NearCooldown.Duration(),
		MaxPeers:       p.MaxTrackedPeers,
		MinStrength:    p.MinStrength,
		MaxStrength:    p.MaxStrength,
	}
}

// Validate reports whether the configuration is usable. Callers applying
// flag overrides should validate again afterwards.
func (c Config) Validate() error {
	if c.Broker == "" {
		return errors.New("config: broker must be set")
	}
	if c.DBPath == "" {
		return errors.New("config: db_path must be set")
	}
	if c.Heartbeat < 0 {
		return errors.New("config: heartbeat must not be negative")
	}
	if err := c.Proximity.Classifier().Validate(); err != nil {
		return err
	}
	if c.Indicator.Enabled {
		if c.Indicator.Chip == "" {
			return errors.New("config: indicator chip must be set")
		}
		if c.Indicator.NearPin < 0 || c.Indicator.ClaimPin < 0 {
			return errors.New("config: indicator pins must not be negative")
		}
		if c.Indicator.NearPin == c.Indicator.ClaimPin {
			return errors.New("config: indicator pins must differ")
		}
	}
	return nil
}
