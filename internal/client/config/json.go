package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/invoicekeeper/internal/flagx"
	"github.com/dmitrijs2005/invoicekeeper/internal/timex"
)

// JSONConfig is the on-disk form of Config. Durations use timex.Duration so
// they can be written as "15s" or as integer nanoseconds. Absent keys leave
// the current value alone.
type JSONConfig struct {
	APIBaseURL           string          `json:"api_base_url"`
	DatabasePath         string          `json:"database_path"`
	RequestTimeout       *timex.Duration `json:"request_timeout"`
	SessionCheckInterval *timex.Duration `json:"session_check_interval"`
	InsecureSkipVerify   *bool           `json:"insecure_skip_verify"`
	LogLevel             string          `json:"log_level"`
}

// parseJSON overlays cfg with the file named by -c or -config, if any.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var jc JSONConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if jc.APIBaseURL != "" {
		cfg.APIBaseURL = jc.APIBaseURL
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.SessionCheckInterval != nil {
		cfg.SessionCheckInterval = jc.SessionCheckInterval.Duration
	}
	if jc.InsecureSkipVerify != nil {
		cfg.InsecureSkipVerify = *jc.InsecureSkipVerify
	}
	if jc.LogLevel != "" {
		cfg.LogLevel = jc.LogLevel
	}
	return nil
}
