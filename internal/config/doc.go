// Package config loads, normalizes, and validates Elicit configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ELICIT_API_KEY and FIREWORKS_API_KEY. The Config type centralizes every knob
// the daemon and CLI need, from the job store backend to the remote call
// timeouts that bound each pipeline stage.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
