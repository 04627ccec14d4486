// Package config loads, normalizes, and validates captionminer configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CAPTIONMINER_API_TOKEN. The Config type centralizes every knob the daemon
// and CLI need, so storage locations, backend credentials, and engine timing
// are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
