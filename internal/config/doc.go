// Package config provides YAML-based configuration loading and
// validation for the live transcription service.
package config
