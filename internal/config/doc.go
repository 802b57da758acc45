// Package config handles configuration loading for strand.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults; a missing config file
// path means Default() is used as-is.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	provider:
//	  api_key: "${OPENROUTER_API_KEY}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	chat:
//	  generation_timeout: "30s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/strand/strand.db"
//
// Model provider:
//
//	provider:
//	  base_url: "https://openrouter.ai/api/v1"
//	  api_key: "${OPENROUTER_API_KEY}"
//	  default_model: "arcee-ai/trinity-mini:free"
//
// Chat behavior:
//
//	chat:
//	  max_prior_turns: 3
//	  system_prompt: "You are a helpful assistant."
//	  generation_timeout: "30s"
//
// Authentication (leave jwt_secret empty for single-tenant anonymous mode):
//
//	auth:
//	  jwt_secret: "${STRAND_JWT_SECRET}"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
