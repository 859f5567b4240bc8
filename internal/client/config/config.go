// Package config loads runtime configuration for the releasectl CLI.
//
// Sources, later ones overriding earlier ones:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags (see parseFlags).
//
// JSON example:
//
//	{
//	  "server_url": "http://127.0.0.1:8080/api",
//	  "request_timeout": "30s"
//	}
package config

import (
	"os"
	"time"
)

// Config holds runtime settings for the CLI.
//
// Fields:
//   - ServerURL: URL of the envelope endpoint the CLI posts to.
//   - RequestTimeout: deadline for a single envelope round trip.
type Config struct {
	ServerURL      string
	RequestTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080/api"
	c.RequestTimeout = 30 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present).
func LoadConfig() *Config {
	args := os.Args[1:]

	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseFlags(cfg, args)
	return cfg
}
