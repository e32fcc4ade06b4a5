package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFile_NoFile(t *testing.T) {
	cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "mallfed.yaml"))
	require.NoError(t, err)
	assert.Nil(t, cfg, "Should return nil when config file doesn't exist")
}

func TestLoadConfigFile_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "mallfed.yaml")
	configContent := `catalog:
  path: /srv/mallfed/products.json
  retention:
    keep: 10
    maxAge: 14d
malls: /srv/mallfed/malls.yaml
fetch:
  timeout: 15s
  retries: 3
  requestDelay: 2s
concurrency: 4
mirror:
  dsn: postgres://localhost/mallfed
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o600))

	cfg, err := LoadConfigFile(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "/srv/mallfed/products.json", cfg.Catalog.Path)
	assert.Equal(t, 10, cfg.Catalog.Retention.Keep)
	assert.Equal(t, 14*24*time.Hour, cfg.Catalog.Retention.MaxAge.Std())
	assert.Equal(t, 15*time.Second, cfg.Fetch.Timeout.Std())
	require.NotNil(t, cfg.Fetch.Retries)
	assert.Equal(t, 3, *cfg.Fetch.Retries)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, "postgres://localhost/mallfed", cfg.Mirror.DSN)
}

// TestLoadConfigFile_LocalOverride verifies that <name>.local.yaml is
// merged over the base file.
func TestLoadConfigFile_LocalOverride(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "mallfed.yaml"), []byte(`catalog:
  path: data/products.json
concurrency: 2
logLevel: info
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "mallfed.local.yaml"), []byte(`concurrency: 6
logLevel: debug
`), 0o600))

	cfg, err := LoadConfigFile(filepath.Join(tmpDir, "mallfed.yaml"))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "data/products.json", cfg.Catalog.Path, "unset local keys keep the base value")
	assert.Equal(t, 6, cfg.Concurrency)
	assert.Equal(t, "debug", cfg.LogLevel)
}

// TestLoadConfigFile_LocalOnly verifies that a lone local file is used.
func TestLoadConfigFile_LocalOnly(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "mallfed.local.yaml"), []byte("concurrency: 3\n"), 0o600))

	cfg, err := LoadConfigFile(filepath.Join(tmpDir, "mallfed.yaml"))
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 3, cfg.Concurrency)
}

func TestLoadConfigFile_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "mallfed.yaml")
	invalidContent := `catalog:
  - this is invalid yaml because catalog should be an object not a list
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidContent), 0o600))

	cfg, err := LoadConfigFile(configPath)
	assert.Error(t, err, "Should return error for invalid YAML")
	assert.Nil(t, cfg)
}

func TestLoadConfigFile_InvalidDuration(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "mallfed.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("fetch:\n  timeout: soon\n"), 0o600))

	_, err := LoadConfigFile(configPath)
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"90s", 90 * time.Second},
		{"12h", 12 * time.Hour},
		{"30d", 30 * 24 * time.Hour},
		{"2w", 14 * 24 * time.Hour},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseDuration("xd")
	assert.Error(t, err)
	_, err = ParseDuration("")
	assert.Error(t, err)
}

func TestLocalVariant(t *testing.T) {
	assert.Equal(t, filepath.Join("conf", "mallfed.local.yaml"), localVariant(filepath.Join("conf", "mallfed.yaml")))
	assert.Equal(t, "mallfed.local", localVariant("mallfed"))
}
