// Package config provides environment-based configuration.
//
// Maps environment variables to a Config struct with sensible defaults and
// validates cross-field constraints (e.g. SSE keep-alive vs. max lifetime).
package config
