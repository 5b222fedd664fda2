// Package config loads, normalizes, and validates study-timelapse
// configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the STUDY_TIMELAPSE_API_TOKEN
// environment fallback. The Config type centralizes every knob the CLI and
// engine need so capture, assembly, and conversion settings are discovered in
// one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
