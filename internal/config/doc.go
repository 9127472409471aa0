// Package config loads, normalizes, and validates metapub configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours a local .env file plus METAPUB_*
// environment overrides for the archive and directory locations. The Config
// type centralizes every knob the ingest and process stages need, so batch
// sizing, member selection, identifier decoding, and the dedup pass order are
// all discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
