package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the top-level keywarden configuration file.
type YAMLConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string     `yaml:"host"`
	Port            int        `yaml:"port"`
	ShutdownTimeout string     `yaml:"shutdown_timeout"`
	RateLimitPerMin int        `yaml:"rate_limit_per_minute"`
	CORS            CORSConfig `yaml:"cors"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
}

// AuthConfig controls validation cache behavior.
type AuthConfig struct {
	CacheTTL string `yaml:"cache_ttl"`
}

// StoreConfig selects the key store backend. Driver is one of "sqlite",
// "pgx", or "mysql"; DSN is ignored for sqlite, which uses the data dir.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DefaultYAMLConfig returns the configuration used when no file is present.
func DefaultYAMLConfig() YAMLConfig {
	return YAMLConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "30s",
			RateLimitPerMin: 300,
			CORS:            CORSConfig{Origins: []string{"*"}},
		},
		Auth:    AuthConfig{CacheTTL: "5m"},
		Store:   StoreConfig{Driver: "sqlite"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// LoadYAML reads a configuration file, layering it over the defaults.
// A missing file is not an error; the defaults are returned.
func LoadYAML(path string) (YAMLConfig, error) {
	cfg := DefaultYAMLConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// CacheTTLDuration parses the auth cache TTL, falling back to 5 minutes for
// empty or malformed values.
func (c AuthConfig) CacheTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// ShutdownTimeoutDuration parses the shutdown timeout with a 30s fallback.
func (c ServerConfig) ShutdownTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
