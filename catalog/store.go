// Package catalog persists the product catalog as a single JSON array with
// timestamped backups and atomic replacement.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// backupTimeFormat sorts lexically in time order.
const backupTimeFormat = "20060102T150405.000Z"

var (
	// ErrCorrupt means the catalog file exists but is not a JSON array of
	// products.
	ErrCorrupt = errors.New("catalog file is corrupt")
	// ErrNotLoaded is returned by Commit before a successful Load.
	ErrNotLoaded = errors.New("catalog has not been loaded")
	// ErrBackupNotFound is returned by Restore for an unknown backup name.
	ErrBackupNotFound = errors.New("backup not found")
	// ErrInvalidCatalog means a catalog about to be written breaks an
	// invariant.
	ErrInvalidCatalog = errors.New("catalog violates invariants")
)

// IOError is a failure to read the catalog. It is fatal for a run.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to load catalog %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// WriteError is a failure to persist the catalog. Stage says how far the
// commit got: "verify" and "backup" leave the primary file untouched.
type WriteError struct {
	Stage string
	Path  string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write catalog (%s) %s: %v", e.Stage, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Retention bounds how many backups are kept. The newest backup is never
// removed.
type Retention struct {
	Keep   int           // keep at most this many backups (0 = no count limit)
	MaxAge time.Duration // remove backups older than this (0 = no age limit)
}

// Options configure a Store.
type Options struct {
	BackupDir string // defaults to "<catalog dir>/backups"
	Retention Retention
	Now       func() time.Time
}

// Backup describes one backup file.
type Backup struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"createdAt"`
	Size      int64     `json:"size"`
}

// Store owns the catalog file. All mutations go through one Store and are
// serialized by its mutex.
type Store struct {
	mu        sync.Mutex
	path      string
	backupDir string
	retention Retention
	now       func() time.Time
	loaded    bool
	// writeFile replaces the primary file
	writeFile func(path string, data []byte) error
}

// NewStore creates a store for the catalog at path, creating its directory
// and the backup directory if needed.
func NewStore(path string, opts Options) (*Store, error) {
	if opts.BackupDir == "" {
		opts.BackupDir = filepath.Join(filepath.Dir(path), "backups")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	// 0700: owner-only access
	for _, dir := range []string{filepath.Dir(path), opts.BackupDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}

	return &Store{
		path:      path,
		backupDir: opts.BackupDir,
		retention: opts.Retention,
		now:       opts.Now,
		writeFile: writeFileAtomic,
	}, nil
}

// Path returns the primary catalog file path.
func (s *Store) Path() string { return s.path }

// Load reads the catalog. A missing file is an empty catalog; anything that
// is not a JSON array of products is an *IOError wrapping ErrCorrupt.
func (s *Store) Load() ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	products, err := ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	if violations := Verify(products); len(violations) > 0 {
		slog.Warn("loaded catalog has invariant violations",
			"path", s.path, "count", len(violations), "first", violations[0].String())
	}

	s.loaded = true
	return products, nil
}

// ReadFile decodes a catalog file without touching any store state.
func ReadFile(path string) ([]Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Product{}, nil // No catalog yet (not an error)
		}
		return nil, &IOError{Path: path, Err: err}
	}
	return decode(path, data)
}

func decode(path string, data []byte) ([]Product, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &IOError{Path: path, Err: fmt.Errorf("%w: empty file", ErrCorrupt)}
	}
	var products []Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, &IOError{Path: path, Err: fmt.Errorf("%w: %v", ErrCorrupt, err)}
	}
	if products == nil {
		return nil, &IOError{Path: path, Err: fmt.Errorf("%w: expected a JSON array", ErrCorrupt)}
	}
	return products, nil
}

// Commit replaces the catalog with products. The current file, if any, is
// first copied to a timestamped backup; then the new content is written to
// a temporary file in the same directory and renamed over the primary, so
// readers see either the old or the new catalog and never a partial one.
// It returns the backup path ("" when there was nothing to back up).
func (s *Store) Commit(products []Product) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return "", &WriteError{Stage: "verify", Path: s.path, Err: ErrNotLoaded}
	}
	if violations := Verify(products); len(violations) > 0 {
		return "", &WriteError{
			Stage: "verify",
			Path:  s.path,
			Err:   fmt.Errorf("%w: %d violations, first: %s", ErrInvalidCatalog, len(violations), violations[0]),
		}
	}

	if products == nil {
		products = []Product{}
	}
	data, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		return "", &WriteError{Stage: "verify", Path: s.path, Err: fmt.Errorf("failed to marshal catalog: %w", err)}
	}

	return s.replace(append(data, '\n'))
}

// replace backs up the primary file and atomically writes data over it.
// Callers hold s.mu.
func (s *Store) replace(data []byte) (string, error) {
	backupPath, err := s.backup()
	if err != nil {
		return "", &WriteError{Stage: "backup", Path: s.path, Err: err}
	}

	if err := s.writeFile(s.path, data); err != nil {
		return backupPath, &WriteError{Stage: "write", Path: s.path, Err: err}
	}

	if removed, err := s.prune(); err != nil {
		slog.Warn("failed to prune catalog backups", "dir", s.backupDir, "error", err)
	} else if len(removed) > 0 {
		slog.Info("pruned catalog backups", "removed", len(removed))
	}

	return backupPath, nil
}

// backup copies the current primary file into the backup directory.
func (s *Store) backup() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil // Nothing to back up
		}
		return "", fmt.Errorf("failed to read current catalog: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(s.path), filepath.Ext(s.path))
	stamp := s.now().UTC().Format(backupTimeFormat)
	name := fmt.Sprintf("%s-backup-%s.json", stem, stamp)
	for i := 1; ; i++ {
		// Stop at the first free name; other stat errors surface on write
		if _, err := os.Stat(filepath.Join(s.backupDir, name)); err != nil {
			break
		}
		name = fmt.Sprintf("%s-backup-%s-%d.json", stem, stamp, i)
	}

	path := filepath.Join(s.backupDir, name)
	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	return path, nil
}

// ListBackups returns the backups of this catalog, newest first.
func (s *Store) ListBackups() ([]Backup, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	prefix := strings.TrimSuffix(filepath.Base(s.path), filepath.Ext(s.path)) + "-backup-"
	var backups []Backup
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || filepath.Ext(name) != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		created := info.ModTime()
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json")
		if len(stamp) >= len(backupTimeFormat) {
			if t, err := time.Parse(backupTimeFormat, stamp[:len(backupTimeFormat)]); err == nil {
				created = t
			}
		}

		backups = append(backups, Backup{
			Name:      name,
			Path:      filepath.Join(s.backupDir, name),
			CreatedAt: created,
			Size:      info.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		if backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].Name > backups[j].Name
		}
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Prune applies the retention policy and returns the removed backup names.
func (s *Store) Prune() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prune()
}

func (s *Store) prune() ([]string, error) {
	if s.retention.Keep <= 0 && s.retention.MaxAge <= 0 {
		return nil, nil
	}

	backups, err := s.ListBackups()
	if err != nil {
		return nil, err
	}

	now := s.now()
	var removed []string
	for i, b := range backups {
		if i == 0 {
			continue
		}
		tooMany := s.retention.Keep > 0 && i >= s.retention.Keep
		tooOld := s.retention.MaxAge > 0 && now.Sub(b.CreatedAt) > s.retention.MaxAge
		if !tooMany && !tooOld {
			continue
		}
		if err := os.Remove(b.Path); err != nil {
			return removed, fmt.Errorf("failed to remove backup %s: %w", b.Name, err)
		}
		removed = append(removed, b.Name)
	}
	return removed, nil
}

// Restore replaces the catalog with the content of a backup. The current
// catalog is itself backed up first. It returns the new backup path.
func (s *Store) Restore(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name != filepath.Base(name) {
		return "", fmt.Errorf("%w: %s", ErrBackupNotFound, name)
	}
	path := filepath.Join(s.backupDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrBackupNotFound, name)
		}
		return "", fmt.Errorf("failed to read backup: %w", err)
	}
	if _, err := decode(path, data); err != nil {
		return "", err
	}

	return s.replace(data)
}

// writeFileAtomic writes data to a temporary file next to path, syncs it
// and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	// 0600: owner-only read/write
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}
