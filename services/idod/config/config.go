package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling from human
// readable strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings such as "15s" or "5m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a string")
	}
	if value.Value == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for idod.
type Config struct {
	ListenAddress string       `yaml:"listen"`
	DatabasePath  string       `yaml:"database"`
	Owner         string       `yaml:"owner"`
	USDC          string       `yaml:"usdc"`
	USDT          string       `yaml:"usdt"`
	AdminToken    string       `yaml:"admin_token"`
	Oracle        OracleConfig `yaml:"oracle"`
}

// OracleConfig tunes the native-asset price feed client.
type OracleConfig struct {
	Endpoint string   `yaml:"endpoint"`
	Key      string   `yaml:"key"`
	Interval Duration `yaml:"interval"`
	MaxAge   Duration `yaml:"max_age"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8645"
	}
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return nil, fmt.Errorf("config: database path required")
	}
	if strings.TrimSpace(cfg.Owner) == "" {
		return nil, fmt.Errorf("config: owner address required")
	}
	if strings.TrimSpace(cfg.USDC) == "" || strings.TrimSpace(cfg.USDT) == "" {
		return nil, fmt.Errorf("config: stablecoin addresses required")
	}
	if strings.TrimSpace(cfg.AdminToken) == "" {
		return nil, fmt.Errorf("config: admin token required")
	}
	if strings.TrimSpace(cfg.Oracle.Endpoint) == "" {
		return nil, fmt.Errorf("config: oracle endpoint required")
	}
	if strings.TrimSpace(cfg.Oracle.Key) == "" {
		cfg.Oracle.Key = "ASTR/USD"
	}
	if cfg.Oracle.Interval.Duration <= 0 {
		cfg.Oracle.Interval.Duration = 15 * time.Second
	}
	return cfg, nil
}
