// Package config loads, normalizes, and validates the caddis configuration.
// Configuration is a single TOML file; every path field is expanded to an
// absolute path during load so downstream components never deal with "~".
package config
