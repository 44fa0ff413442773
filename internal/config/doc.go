// Package config loads, normalizes, and validates video2notes configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files strictly, and honours environment fallbacks such
// as OPENROUTER_API_KEY and HF_TOKEN. Per-run options live in package runconfig;
// this package covers the settings shared by every run.
package config
