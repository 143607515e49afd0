// Package config loads, normalizes, and validates Fermata configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FERMATA_WORKER_BINARY. The Config type centralizes every knob the player
// CLI and worker supervision need: worker timeouts, restart policy, frame
// delivery, journaling, and logging.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
