// Package config loads, normalizes, and validates ticketless configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DATABASE_URL and WORKER_SECRET. The Config type centralizes every knob the
// daemon, the worker, and the CLI need, so workspace directories, storage
// credentials, toolchain binaries, and slicing windows are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
