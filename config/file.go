package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads "90s", "12h", "30d" or "2w" from
// YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// RetentionConfig is the backup retention policy.
type RetentionConfig struct {
	Keep   int      `yaml:"keep,omitempty"`
	MaxAge Duration `yaml:"maxAge,omitempty"`
}

// CatalogConfig locates the catalog file and its backups.
type CatalogConfig struct {
	Path      string          `yaml:"path,omitempty"`
	BackupDir string          `yaml:"backupDir,omitempty"`
	Retention RetentionConfig `yaml:"retention,omitempty"`
}

// FetchConfig holds defaults for every mall; descriptors may override
// timeout, retries and TLS per mall.
type FetchConfig struct {
	Timeout        Duration `yaml:"timeout,omitempty"`
	Retries        *int     `yaml:"retries,omitempty"`
	RetryWait      Duration `yaml:"retryWait,omitempty"`
	RequestDelay   Duration `yaml:"requestDelay,omitempty"`
	UserAgent      string   `yaml:"userAgent,omitempty"`
	AcceptLanguage string   `yaml:"acceptLanguage,omitempty"`
	InsecureTLS    bool     `yaml:"insecureTLS,omitempty"`
	ChromePath     string   `yaml:"chromePath,omitempty"`
}

// MirrorConfig enables the PostgreSQL mirror when DSN is set.
type MirrorConfig struct {
	DSN string `yaml:"dsn,omitempty"`
}

// APIConfig configures the read API daemon.
type APIConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// FileConfig represents the structure of mallfed.yaml.
type FileConfig struct {
	Catalog     CatalogConfig `yaml:"catalog,omitempty"`
	Malls       string        `yaml:"malls,omitempty"`
	Reports     string        `yaml:"reports,omitempty"`
	History     string        `yaml:"history,omitempty"`
	Fetch       FetchConfig   `yaml:"fetch,omitempty"`
	Concurrency int           `yaml:"concurrency,omitempty"`
	Mirror      MirrorConfig  `yaml:"mirror,omitempty"`
	API         APIConfig     `yaml:"api,omitempty"`
	LogLevel    string        `yaml:"logLevel,omitempty"`
}

// LoadConfigFile reads the YAML file at path and merges a sibling
// <name>.local.<ext> over it. Returns nil if neither file exists (not an
// error). Returns error if a file exists but cannot be parsed.
func LoadConfigFile(path string) (*FileConfig, error) {
	base, err := readYAML(path)
	if err != nil {
		return nil, err
	}

	localPath := localVariant(path)
	local, err := readYAML(localPath)
	if err != nil {
		return nil, err
	}

	switch {
	case base == nil && local == nil:
		return nil, nil
	case base == nil:
		return local, nil
	case local != nil:
		if err := mergo.Merge(base, local, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge %s: %w", localPath, err)
		}
		slog.Info("merged config with local overrides", "local", localPath)
	}
	return base, nil
}

func readYAML(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil // File doesn't exist -- not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

// localVariant maps "conf/mallfed.yaml" to "conf/mallfed.local.yaml".
func localVariant(path string) string {
	dir, file := filepath.Split(path)
	ext := filepath.Ext(file)
	return filepath.Join(dir, strings.TrimSuffix(file, ext)+".local"+ext)
}

// ParseDuration extends time.ParseDuration to support 'd' (days) and 'w'
// (weeks)
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)

	// Try standard parsing first
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	// Handle days (d) and weeks (w)
	if strings.HasSuffix(s, "d") {
		days := s[:len(s)-1]
		var n int
		_, err := fmt.Sscanf(days, "%d", &n)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}

	if strings.HasSuffix(s, "w") {
		weeks := s[:len(s)-1]
		var n int
		_, err := fmt.Sscanf(weeks, "%d", &n)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}

	return 0, fmt.Errorf("invalid duration: %s", s)
}
