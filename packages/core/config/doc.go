// Package config loads user configuration for hitcall.
//
// It provides functionality for:
//   - Loading ~/.hitcall.yaml, or a file given explicitly
//   - HITCALL_ environment overrides, including values from a .env file
//   - Default configuration values
package config
