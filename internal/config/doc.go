// Package config loads, validates, and normalizes the TOML configuration
// consumed by the daemon and CLI. Configuration is an explicit struct selected
// once at startup; there is no environment-specific merging.
package config
