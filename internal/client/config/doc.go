// Package config loads runtime configuration for the remote storage CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Command-line flags bound with (*Config).BindFlags, which override
//     earlier values.
//
// # JSON schema
//
// Durations use timex.Duration, so values can be either strings like "3s" or
// integer nanoseconds. Absent keys keep their defaults:
//
//	{
//	  "api_endpoint": "https://api.example.com",
//	  "transport": "grpc",
//	  "grpc_addr": "api.example.com:50051",
//	  "cache_dir": "/var/cache/rsctl",
//	  "size_limit": 10485760,
//	  "staging_retry_interval": "500ms",
//	  "http_timeout": "2m",
//	  "index_dsn": "/var/lib/rsctl/uploads.db"
//	}
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
