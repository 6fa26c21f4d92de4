package config

import (
	"fmt"
	"time"
)

// Config holds runtime settings for the invoicekeeper CLI.
//
// Fields:
//   - APIBaseURL: root URL of the invoice API, e.g. https://localhost:7052/api.
//   - DatabasePath: sqlite file holding the persisted session.
//   - RequestTimeout: per-request HTTP timeout.
//   - SessionCheckInterval: how often the token expiry is checked.
//   - InsecureSkipVerify: accept self-signed TLS certificates (development).
//   - LogLevel: debug, info, warn or error.
type Config struct {
	APIBaseURL           string
	DatabasePath         string
	RequestTimeout       time.Duration
	SessionCheckInterval time.Duration
	InsecureSkipVerify   bool
	LogLevel             string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "https://localhost:7052/api"
	c.DatabasePath = "invoicekeeper.db"
	c.RequestTimeout = 15 * time.Second
	c.SessionCheckInterval = 30 * time.Second
	c.InsecureSkipVerify = false
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones. args excludes the program name.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("config: api base url is empty")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("config: database path is empty")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config: request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.SessionCheckInterval <= 0 {
		return fmt.Errorf("config: session check interval must be positive, got %s", c.SessionCheckInterval)
	}
	return nil
}
