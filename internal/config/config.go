// ABOUTME: Configuration loading and parsing for chatline
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete chatline configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Stream   StreamConfig   `yaml:"stream"`
	CORS     CORSConfig     `yaml:"cors"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StreamConfig holds streaming delivery tuning
type StreamConfig struct {
	ChunkDelay     time.Duration `yaml:"-"`
	DefaultTimeout time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ChunkDelayRaw     string `yaml:"chunk_delay"`
	DefaultTimeoutRaw string `yaml:"default_timeout"`
}

// CORSConfig holds cross-origin configuration for browser clients
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the config file omits values
const (
	DefaultChunkDelay    = 100 * time.Millisecond
	DefaultStreamTimeout = 30 * time.Second
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Stream.ChunkDelay < 0 {
		return fmt.Errorf("stream.chunk_delay must not be negative")
	}

	if c.Stream.DefaultTimeout <= 0 {
		return fmt.Errorf("stream.default_timeout must be positive")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values,
// falling back to defaults where the file is silent.
func parseDurations(cfg *Config) error {
	var err error

	cfg.Stream.ChunkDelay = DefaultChunkDelay
	if cfg.Stream.ChunkDelayRaw != "" {
		cfg.Stream.ChunkDelay, err = time.ParseDuration(cfg.Stream.ChunkDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing chunk_delay %q: %w", cfg.Stream.ChunkDelayRaw, err)
		}
	}

	cfg.Stream.DefaultTimeout = DefaultStreamTimeout
	if cfg.Stream.DefaultTimeoutRaw != "" {
		cfg.Stream.DefaultTimeout, err = time.ParseDuration(cfg.Stream.DefaultTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing default_timeout %q: %w", cfg.Stream.DefaultTimeoutRaw, err)
		}
	}

	return nil
}
