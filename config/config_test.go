package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir switches to dir for the rest of the test so that .env lookup is
// isolated.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

// TestLoad_Defaults verifies the built-in configuration.
func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("data", "products.json"), cfg.Catalog.Path)
	assert.Equal(t, 1, cfg.Concurrency, "sequential by default")
	assert.Equal(t, 1500*time.Millisecond, cfg.Fetch.RequestDelay.Std())

	o := cfg.FetchOptions()
	assert.Equal(t, 20*time.Second, o.Timeout)
	assert.Equal(t, 2, o.Retries)
	assert.Equal(t, 2*time.Second, o.RetryWait)
	assert.NotEmpty(t, o.UserAgent)

	so := cfg.StoreOptions()
	assert.Equal(t, 30, so.Retention.Keep)
	assert.Equal(t, 30*24*time.Hour, so.Retention.MaxAge)
}

// TestLoad_Precedence verifies file < .env < environment ordering.
func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "mallfed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`catalog:
  path: from-file.json
concurrency: 2
fetch:
  retries: 3
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MALLFED_CONCURRENCY=5\nMALLFED_REPORTS=from-dotenv\n"), 0o600))

	t.Setenv("MALLFED_CONCURRENCY", "")
	t.Setenv("MALLFED_REPORTS", "")
	t.Setenv("MALLFED_CATALOG", "from-env.json")
	t.Setenv("MALLFED_FETCH_TIMEOUT", "45s")
	// Unset so that godotenv may fill them in
	os.Unsetenv("MALLFED_CONCURRENCY")
	os.Unsetenv("MALLFED_REPORTS")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env.json", cfg.Catalog.Path)
	assert.Equal(t, 5, cfg.Concurrency)
	assert.Equal(t, "from-dotenv", cfg.Reports)
	assert.Equal(t, 45*time.Second, cfg.Fetch.Timeout.Std())
	assert.Equal(t, 3, *cfg.Fetch.Retries)
	assert.Equal(t, filepath.Join("data", "history.db"), cfg.History, "untouched keys keep defaults")
}

// TestLoad_InvalidEnv verifies that malformed variables are reported.
func TestLoad_InvalidEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MALLFED_CONCURRENCY", "many")

	_, err := Load("")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// TestValidate verifies that each problem is caught.
func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	negative := -1
	cfg.Concurrency = 0
	cfg.Fetch.Retries = &negative
	cfg.LogLevel = "loud"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "concurrency")
	assert.Contains(t, err.Error(), "retries")
	assert.Contains(t, err.Error(), "log level")
}
