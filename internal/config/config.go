// Package config reads runtime settings from the environment, loading a .env
// file first when one exists.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/insightdelivered/statement-ledger/internal/layout"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	OCR     OCRConfig
	Layouts LayoutConfig
}

type ServerConfig struct {
	Port        int
	MaxUploadMB int
}

type LogConfig struct {
	Level  string
	Format string // console or json
}

type OCRConfig struct {
	Enabled  bool
	Timeout  time.Duration // per page
	MinChars int
	DPI      int
	Lang     string
}

type LayoutConfig struct {
	File       string        // empty uses the embedded layouts
	Unresolved layout.Policy // empty keeps each layout's own policy
}

// Load reads configuration from environment variables. Files are loaded in
// order and never override variables that are already set.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnvAsInt("LEDGER_PORT", 8080),
			MaxUploadMB: getEnvAsInt("LEDGER_MAX_UPLOAD_MB", 32),
		},
		Log: LogConfig{
			Level:  getEnv("LEDGER_LOG_LEVEL", "info"),
			Format: getEnv("LEDGER_LOG_FORMAT", "console"),
		},
		OCR: OCRConfig{
			Enabled:  getEnvAsBool("LEDGER_OCR_ENABLED", true),
			Timeout:  getEnvAsDuration("LEDGER_OCR_TIMEOUT", 30*time.Second),
			MinChars: getEnvAsInt("LEDGER_OCR_MIN_CHARS", 50),
			DPI:      getEnvAsInt("LEDGER_OCR_DPI", 300),
			Lang:     getEnv("LEDGER_OCR_LANG", "eng"),
		},
		Layouts: LayoutConfig{
			File: getEnv("LEDGER_LAYOUTS_FILE", ""),
		},
	}

	policy, err := layout.ParsePolicy(getEnv("LEDGER_UNRESOLVED_POLICY", ""))
	if err != nil {
		return nil, fmt.Errorf("LEDGER_UNRESOLVED_POLICY: %w", err)
	}
	cfg.Layouts.Unresolved = policy

	if f := strings.ToLower(cfg.Log.Format); f != "console" && f != "json" {
		return nil, fmt.Errorf("LEDGER_LOG_FORMAT must be console or json, got %q", cfg.Log.Format)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("LEDGER_PORT out of range: %d", cfg.Server.Port)
	}
	if cfg.Server.MaxUploadMB <= 0 {
		return nil, errors.New("LEDGER_MAX_UPLOAD_MB must be positive")
	}
	return cfg, nil
}

// Registry loads the configured layouts file, or the embedded layouts.
func (c *LayoutConfig) Registry() (*layout.Registry, error) {
	return layout.Load(c.File)
}

// MaxUploadBytes is the upload limit in bytes.
func (c *ServerConfig) MaxUploadBytes() int {
	return c.MaxUploadMB << 20
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(strings.TrimSpace(valueStr)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(strings.TrimSpace(valueStr)); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("45s") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	if secs, err := strconv.Atoi(valueStr); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
