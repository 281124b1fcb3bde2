// Package config provides configuration management for the recommendation
// service. This file contains the lightweight configuration for the
// standalone CLI, which needs no config file or external services.
package config

import (
	"os"
	"strconv"
)

// LiteConfig is the minimal configuration the CLI needs: where the
// snapshot lives and how chatty to be.
type LiteConfig struct {
	// SnapshotPath locates the JSON snapshot of guideline data.
	SnapshotPath string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// Pretty indents the JSON output.
	Pretty bool
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	return &LiteConfig{
		SnapshotPath: "recommendations.json",
		LogLevel:     "warn",
		Pretty:       true,
	}
}

// LoadLiteConfig loads configuration from environment variables, falling
// back to defaults.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("OPENPGX_SNAPSHOT_PATH"); v != "" {
		cfg.SnapshotPath = v
	}
	if v := os.Getenv("OPENPGX_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("OPENPGX_PRETTY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Pretty = b
		}
	}

	return cfg
}
