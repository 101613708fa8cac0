// Package config handles configuration loading from environment variables,
// an optional .env file and mounted secret files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the bridge.
type Config struct {
	// Controller connection
	Host     string
	Username string
	Password string

	// Polling behavior
	ScanInterval   time.Duration
	RequestTimeout time.Duration
	ChunkSize      int

	// Writes are refused unless explicitly enabled.
	EnableWrites bool

	// Catalog file
	CatalogPath string

	// Server configuration
	ListenAddr string

	// Logging configuration
	LogLevel  string // debug, info, warn, error
	LogFormat string // text, json
}

// LoadConfig loads configuration from the environment. A .env file in the
// working directory is merged first without overriding real environment
// variables. Credentials are read from mounted secret files when present,
// falling back to SVK_USERNAME / SVK_PASSWORD.
func LoadConfig() (*Config, error) {
	// Missing .env is the normal case.
	_ = godotenv.Load()

	cfg := &Config{
		ScanInterval:   30 * time.Second,
		RequestTimeout: 10 * time.Second,
		ChunkSize:      25,
		CatalogPath:    "catalog.yaml",
		ListenAddr:     ":9810",
		LogLevel:       "info",
		LogFormat:      "text",
	}

	cfg.Host = os.Getenv("SVK_HOST")

	username, password, err := tryLoadFromSecrets()
	if err == nil && username != "" && password != "" {
		cfg.Username = username
		cfg.Password = password
	} else {
		cfg.Username = os.Getenv("SVK_USERNAME")
		cfg.Password = os.Getenv("SVK_PASSWORD")
	}

	if addr := os.Getenv("SVK_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}

	if path := os.Getenv("SVK_CATALOG_PATH"); path != "" {
		cfg.CatalogPath = path
	}

	if level := os.Getenv("SVK_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if format := os.Getenv("SVK_LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}

	if interval := os.Getenv("SVK_SCAN_INTERVAL"); interval != "" {
		if seconds, err := strconv.Atoi(interval); err == nil && seconds > 0 {
			cfg.ScanInterval = time.Duration(seconds) * time.Second
		}
	}

	if timeout := os.Getenv("SVK_REQUEST_TIMEOUT"); timeout != "" {
		if seconds, err := strconv.Atoi(timeout); err == nil && seconds > 0 {
			cfg.RequestTimeout = time.Duration(seconds) * time.Second
		}
	}

	if size := os.Getenv("SVK_CHUNK_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil && n > 0 {
			cfg.ChunkSize = n
		}
	}

	if writes := os.Getenv("SVK_ENABLE_WRITES"); writes != "" {
		if enabled, err := strconv.ParseBool(writes); err == nil {
			cfg.EnableWrites = enabled
		}
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host is required (set SVK_HOST)")
	}
	if c.Username == "" {
		return errors.New("username is required (set SVK_USERNAME or mount a secret)")
	}
	if c.Password == "" {
		return errors.New("password is required (set SVK_PASSWORD or mount a secret)")
	}
	if c.RequestTimeout < time.Second {
		return errors.New("request timeout must be at least 1 second")
	}
	if c.ScanInterval < 5*time.Second {
		return errors.New("scan interval must be at least 5 seconds")
	}
	return nil
}

// String renders the config for startup logs. The password is always redacted.
func (c *Config) String() string {
	return fmt.Sprintf(
		"host=%s username=%s password=<redacted> scan_interval=%s request_timeout=%s chunk_size=%d writes=%t catalog=%s addr=%s",
		c.Host, c.Username, c.ScanInterval, c.RequestTimeout, c.ChunkSize, c.EnableWrites, c.CatalogPath, c.ListenAddr,
	)
}
