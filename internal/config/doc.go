// Package config provides configuration loading and validation for the voice
// assistant service. It handles YAML-based configuration with struct validation
// and overlays provider credentials from the environment via .env files.
package config
