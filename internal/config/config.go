package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from yaml strings like "10m"
// or "168h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	FeedURL         string      `yaml:"feed_url"`
	CredentialsFile string      `yaml:"credentials_file"`
	DailyQuota      int         `yaml:"daily_quota"`
	FreshnessWindow Duration    `yaml:"freshness_window"`
	RequestsPerMin  int         `yaml:"requests_per_minute"`
	MaxResults      int         `yaml:"max_results"`
	Interval        Duration    `yaml:"interval"`
	MetricsAddr     string      `yaml:"metrics_addr"`
	Store           StoreConfig `yaml:"store"`
}

type StoreConfig struct {
	Type     string `yaml:"type"` // "file", "valkey" or "memory"
	Path     string `yaml:"path"` // file store data directory
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
}

func Load(path string) (*Config, error) {
	// Defaults
	c := &Config{
		DailyQuota:      200,
		FreshnessWindow: Duration(7 * 24 * time.Hour),
		RequestsPerMin:  10,
		MaxResults:      500,
		Interval:        Duration(6 * time.Hour),
		MetricsAddr:     ":9090",
		Store: StoreConfig{
			Type: "file",
			Path: "data",
		},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if c.FeedURL == "" {
		return nil, fmt.Errorf("feed_url is required")
	}
	if c.CredentialsFile == "" {
		return nil, fmt.Errorf("credentials_file is required")
	}
	if c.DailyQuota < 0 {
		return nil, fmt.Errorf("daily_quota must not be negative")
	}
	if c.FreshnessWindow < 0 {
		return nil, fmt.Errorf("freshness_window must not be negative")
	}
	switch c.Store.Type {
	case "file", "memory":
	case "valkey":
		if c.Store.Address == "" {
			return nil, fmt.Errorf("store.address is required for the valkey store")
		}
	default:
		return nil, fmt.Errorf("unknown store type %q", c.Store.Type)
	}

	return c, nil
}
