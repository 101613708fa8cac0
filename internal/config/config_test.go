package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_EnvVars(t *testing.T) {
	os.Setenv("SVK_HOST", "192.168.1.50")
	os.Setenv("SVK_USERNAME", "admin")
	os.Setenv("SVK_PASSWORD", "testpass123")
	os.Setenv("SVK_ADDR", ":9999")
	os.Setenv("SVK_SCAN_INTERVAL", "15")
	os.Setenv("SVK_REQUEST_TIMEOUT", "5")
	os.Setenv("SVK_CHUNK_SIZE", "10")
	os.Setenv("SVK_ENABLE_WRITES", "true")
	os.Setenv("SVK_CATALOG_PATH", "/etc/svklom/catalog.yaml")
	os.Setenv("SVK_LOG_LEVEL", "debug")
	os.Setenv("SVK_LOG_FORMAT", "json")
	defer func() {
		for _, key := range []string{
			"SVK_HOST", "SVK_USERNAME", "SVK_PASSWORD", "SVK_ADDR",
			"SVK_SCAN_INTERVAL", "SVK_REQUEST_TIMEOUT", "SVK_CHUNK_SIZE",
			"SVK_ENABLE_WRITES", "SVK_CATALOG_PATH", "SVK_LOG_LEVEL", "SVK_LOG_FORMAT",
		} {
			os.Unsetenv(key)
		}
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Host != "192.168.1.50" {
		t.Errorf("Host = %v, want 192.168.1.50", cfg.Host)
	}
	if cfg.Username != "admin" {
		t.Errorf("Username = %v, want admin", cfg.Username)
	}
	if cfg.Password != "testpass123" {
		t.Errorf("Password = %v, want testpass123", cfg.Password)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %v, want :9999", cfg.ListenAddr)
	}
	if cfg.ScanInterval != 15*time.Second {
		t.Errorf("ScanInterval = %v, want 15s", cfg.ScanInterval)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s", cfg.RequestTimeout)
	}
	if cfg.ChunkSize != 10 {
		t.Errorf("ChunkSize = %v, want 10", cfg.ChunkSize)
	}
	if !cfg.EnableWrites {
		t.Error("EnableWrites = false, want true")
	}
	if cfg.CatalogPath != "/etc/svklom/catalog.yaml" {
		t.Errorf("CatalogPath = %v, want /etc/svklom/catalog.yaml", cfg.CatalogPath)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %v, want json", cfg.LogFormat)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{
		"SVK_ADDR", "SVK_SCAN_INTERVAL", "SVK_REQUEST_TIMEOUT",
		"SVK_CHUNK_SIZE", "SVK_ENABLE_WRITES", "SVK_CATALOG_PATH",
		"SVK_LOG_LEVEL", "SVK_LOG_FORMAT",
	} {
		os.Unsetenv(key)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.ListenAddr != ":9810" {
		t.Errorf("ListenAddr = %v, want :9810", cfg.ListenAddr)
	}
	if cfg.ScanInterval != 30*time.Second {
		t.Errorf("ScanInterval = %v, want 30s", cfg.ScanInterval)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", cfg.RequestTimeout)
	}
	if cfg.ChunkSize != 25 {
		t.Errorf("ChunkSize = %v, want 25", cfg.ChunkSize)
	}
	if cfg.EnableWrites {
		t.Error("EnableWrites = true, want false by default")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %v, want text", cfg.LogFormat)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		Host:           "192.168.1.50",
		Username:       "admin",
		Password:       "password",
		ScanInterval:   30 * time.Second,
		RequestTimeout: 10 * time.Second,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing host", func(c *Config) { c.Host = "" }, true},
		{"missing username", func(c *Config) { c.Username = "" }, true},
		{"missing password", func(c *Config) { c.Password = "" }, true},
		{"timeout too small", func(c *Config) { c.RequestTimeout = 500 * time.Millisecond }, true},
		{"interval too small", func(c *Config) { c.ScanInterval = time.Second }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStringRedactsPassword(t *testing.T) {
	cfg := Config{
		Host:     "192.168.1.50",
		Username: "admin",
		Password: "supersecret",
	}

	s := cfg.String()
	if strings.Contains(s, "supersecret") {
		t.Errorf("String() = %q, leaks the password", s)
	}
	if !strings.Contains(s, "<redacted>") {
		t.Errorf("String() = %q, want redaction marker", s)
	}
}
