// Package config resolves mallfed settings from defaults, a YAML file with
// an optional local override, a .env file and MALLFED_* environment
// variables, in increasing order of priority.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"github.com/pevans/mallfed/catalog"
	"github.com/pevans/mallfed/fetch"
)

// DefaultPath is used when neither a flag nor MALLFED_CONFIG names a file.
const DefaultPath = "mallfed.yaml"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the resolved configuration.
type Config = FileConfig

// Default returns the built-in configuration.
func Default() *Config {
	retries := fetch.DefaultRetries
	return &Config{
		Catalog: CatalogConfig{
			Path: filepath.Join("data", "products.json"),
			Retention: RetentionConfig{
				Keep:   30,
				MaxAge: Duration(30 * 24 * time.Hour),
			},
		},
		Malls:   "malls.yaml",
		Reports: filepath.Join("data", "reports"),
		History: filepath.Join("data", "history.db"),
		Fetch: FetchConfig{
			Timeout:        Duration(fetch.DefaultTimeout),
			Retries:        &retries,
			RetryWait:      Duration(fetch.DefaultRetryWait),
			RequestDelay:   Duration(1500 * time.Millisecond),
			UserAgent:      fetch.DefaultUserAgent,
			AcceptLanguage: fetch.DefaultAcceptLanguage,
		},
		Concurrency: 1,
		API:         APIConfig{Addr: ":8080"},
		LogLevel:    "info",
	}
}

// Load resolves the configuration. path may be empty, in which case
// MALLFED_CONFIG or DefaultPath is used; a missing file is not an error.
// A .env file in the working directory is loaded first and never
// overrides variables that are already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if path == "" {
		path = getEnv("MALLFED_CONFIG", DefaultPath)
	}

	cfg := Default()
	file, err := LoadConfigFile(path)
	if err != nil {
		return nil, err
	}
	if file != nil {
		if err := mergo.Merge(cfg, file, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// applyEnv overlays MALLFED_* variables.
func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"MALLFED_CATALOG":     &cfg.Catalog.Path,
		"MALLFED_BACKUP_DIR":  &cfg.Catalog.BackupDir,
		"MALLFED_MALLS":       &cfg.Malls,
		"MALLFED_REPORTS":     &cfg.Reports,
		"MALLFED_HISTORY_DSN": &cfg.History,
		"MALLFED_MIRROR_DSN":  &cfg.Mirror.DSN,
		"MALLFED_API_ADDR":    &cfg.API.Addr,
		"MALLFED_LOG_LEVEL":   &cfg.LogLevel,
		"MALLFED_USER_AGENT":  &cfg.Fetch.UserAgent,
		"MALLFED_CHROME_PATH": &cfg.Fetch.ChromePath,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MALLFED_CONCURRENCY": &cfg.Concurrency,
		"MALLFED_BACKUP_KEEP": &cfg.Catalog.Retention.Keep,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, key, v)
			}
			*dst = n
		}
	}

	if v := os.Getenv("MALLFED_FETCH_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: MALLFED_FETCH_RETRIES=%q is not a number", ErrInvalidConfig, v)
		}
		cfg.Fetch.Retries = &n
	}

	durations := map[string]*Duration{
		"MALLFED_FETCH_TIMEOUT":  &cfg.Fetch.Timeout,
		"MALLFED_RETRY_WAIT":     &cfg.Fetch.RetryWait,
		"MALLFED_REQUEST_DELAY":  &cfg.Fetch.RequestDelay,
		"MALLFED_BACKUP_MAX_AGE": &cfg.Catalog.Retention.MaxAge,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
			}
			*dst = Duration(d)
		}
	}

	if v := os.Getenv("MALLFED_INSECURE_TLS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: MALLFED_INSECURE_TLS=%q is not a boolean", ErrInvalidConfig, v)
		}
		cfg.Fetch.InsecureTLS = b
	}
	return nil
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	var problems []string
	if c.Catalog.Path == "" {
		problems = append(problems, "catalog path is required")
	}
	if c.Concurrency < 1 {
		problems = append(problems, "concurrency must be at least 1")
	}
	if c.Catalog.Retention.Keep < 0 {
		problems = append(problems, "retention keep must not be negative")
	}
	if c.Fetch.Timeout <= 0 {
		problems = append(problems, "fetch timeout must be positive")
	}
	if c.Fetch.Retries != nil && *c.Fetch.Retries < 0 {
		problems = append(problems, "fetch retries must not be negative")
	}
	if c.Fetch.RetryWait < 0 || c.Fetch.RequestDelay < 0 {
		problems = append(problems, "fetch waits must not be negative")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// FetchOptions converts the fetch section for the fetch package.
func (c *Config) FetchOptions() fetch.Options {
	o := fetch.DefaultOptions()
	o.Timeout = c.Fetch.Timeout.Std()
	if c.Fetch.Retries != nil {
		o.Retries = *c.Fetch.Retries
	}
	o.RetryWait = c.Fetch.RetryWait.Std()
	if c.Fetch.UserAgent != "" {
		o.UserAgent = c.Fetch.UserAgent
	}
	if c.Fetch.AcceptLanguage != "" {
		o.AcceptLanguage = c.Fetch.AcceptLanguage
	}
	o.InsecureTLS = c.Fetch.InsecureTLS
	o.ChromePath = c.Fetch.ChromePath
	return o
}

// StoreOptions converts the catalog section for catalog.NewStore.
func (c *Config) StoreOptions() catalog.Options {
	return catalog.Options{
		BackupDir: c.Catalog.BackupDir,
		Retention: catalog.Retention{
			Keep:   c.Catalog.Retention.Keep,
			MaxAge: c.Catalog.Retention.MaxAge.Std(),
		},
	}
}

// SetupLogging installs a text slog handler at the configured level as the
// default logger.
func (c *Config) SetupLogging(w io.Writer) {
	level, _ := parseLevel(c.LogLevel)
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
