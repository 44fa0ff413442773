// Package runconfig defines the per-run option record and its strict decoding
// from TOML, YAML, and JSON. Unknown keys are rejected at decode time and all
// validation failures are reported together as a services.ConfigError.
package runconfig
