// Package config loads, normalizes, and validates tmcore configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TMCORE_DATA_DIR. The Config type centralizes every knob the stores, the
// leverage providers, and the CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical access modes, and clear validation errors.
package config
