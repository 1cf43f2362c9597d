// Package config provides server configuration for RetroState.
//
// This package defines the server configuration structure and validation:
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Business validation (addresses, limits, key length, paths)
//   - sanitize.go: Log sanitization (hide sensitive values)
//
// Configuration is loaded via internal/infra/confloader from defaults,
// a YAML file and RETROSTATE_ environment variables.
package config
