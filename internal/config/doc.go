// Package config loads, defaults, and validates the TOML configuration
// controlling the pipeline, the two-pass analysis knobs, and the external
// adapter endpoints.
package config
