// Package config loads runtime configuration for the invoicekeeper CLI.
//
// Sources and precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   API base URL
//	-d string   session database path
//	-t int      request timeout (seconds)
//	-i int      session check interval (seconds)
//	-k          skip TLS certificate verification
//	-l string   log level
//
// # JSON schema
//
//	{
//	  "api_base_url": "https://localhost:7052/api",
//	  "database_path": "invoicekeeper.db",
//	  "request_timeout": "15s",
//	  "session_check_interval": "30s",
//	  "insecure_skip_verify": false,
//	  "log_level": "info"
//	}
package config
