// Package config loads runtime configuration for the intake CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string     base URL of the intake server
//	-ut duration  per-file upload timeout, 0 disables it
//	-mf int       maximum number of files per form
//	-rt duration  timeout of non-upload API requests
//	-l string     log level: debug, info, warn or error
//
// # JSON schema
//
// Durations are strings like "90s" or integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "upload_timeout": "0s",
//	  "max_files": 50,
//	  "request_timeout": "30s",
//	  "log_level": "info"
//	}
package config
