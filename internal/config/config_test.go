package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/statement-ledger/internal/layout"
)

func missingEnv(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"LEDGER_PORT", "LEDGER_LOG_LEVEL", "LEDGER_LOG_FORMAT", "LEDGER_OCR_ENABLED",
		"LEDGER_OCR_TIMEOUT", "LEDGER_OCR_MIN_CHARS", "LEDGER_OCR_DPI", "LEDGER_OCR_LANG",
		"LEDGER_LAYOUTS_FILE", "LEDGER_MAX_UPLOAD_MB", "LEDGER_UNRESOLVED_POLICY",
	} {
		t.Setenv(k, "")
	}

	cfg, err := Load(missingEnv(t))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 32<<20, cfg.Server.MaxUploadBytes())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.True(t, cfg.OCR.Enabled)
	assert.Equal(t, 30*time.Second, cfg.OCR.Timeout)
	assert.Equal(t, 50, cfg.OCR.MinChars)
	assert.Equal(t, 300, cfg.OCR.DPI)
	assert.Equal(t, "eng", cfg.OCR.Lang)
	assert.Empty(t, cfg.Layouts.File)
	assert.Equal(t, layout.Policy(""), cfg.Layouts.Unresolved)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LEDGER_PORT", "9090")
	t.Setenv("LEDGER_LOG_FORMAT", "json")
	t.Setenv("LEDGER_OCR_ENABLED", "false")
	t.Setenv("LEDGER_OCR_TIMEOUT", "45")
	t.Setenv("LEDGER_UNRESOLVED_POLICY", "Drop")

	cfg, err := Load(missingEnv(t))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.OCR.Enabled)
	assert.Equal(t, 45*time.Second, cfg.OCR.Timeout)
	assert.Equal(t, layout.PolicyDrop, cfg.Layouts.Unresolved)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"LEDGER_UNRESOLVED_POLICY", "maybe"},
		{"LEDGER_LOG_FORMAT", "xml"},
		{"LEDGER_PORT", "70000"},
		{"LEDGER_MAX_UPLOAD_MB", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load(missingEnv(t))
			assert.Error(t, err)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	t.Setenv("LEDGER_OCR_LANG", "")
	os.Unsetenv("LEDGER_OCR_LANG")
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LEDGER_OCR_LANG=eng+ara\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "eng+ara", cfg.OCR.Lang)
}

func TestLayoutRegistry(t *testing.T) {
	reg, err := (&LayoutConfig{}).Registry()
	require.NoError(t, err)
	assert.NotEmpty(t, reg.Names())

	_, err = (&LayoutConfig{File: missingEnv(t)}).Registry()
	assert.Error(t, err)
}
