package catalog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func sampleProduct(id, url string) Product {
	return Product{
		ID:           id,
		Title:        "철원 오대쌀 10kg",
		Price:        32000,
		ProductURL:   url,
		ImageURL:     "https://cwmall.kr/img/1.jpg",
		Category:     "agricultural",
		MallID:       "cheorwon",
		MallName:     "철원몰",
		Region:       "강원",
		Tags:         []string{"강원", "철원몰"},
		CreatedAt:    baseTime,
		LastVerified: baseTime,
	}
}

// setupTestStore creates a store in a temp directory with a controllable
// clock.
func setupTestStore(t *testing.T, retention Retention) (*Store, *time.Time) {
	t.Helper()
	now := baseTime
	store, err := NewStore(filepath.Join(t.TempDir(), "data", "products.json"), Options{
		Retention: retention,
		Now:       func() time.Time { return now },
	})
	require.NoError(t, err, "should create store")
	return store, &now
}

// TestStore_LoadMissing verifies that a missing catalog loads as empty.
func TestStore_LoadMissing(t *testing.T) {
	store, _ := setupTestStore(t, Retention{})

	products, err := store.Load()
	require.NoError(t, err)
	assert.NotNil(t, products)
	assert.Empty(t, products)
}

// TestStore_LoadCorrupt verifies that malformed JSON is a fatal IOError.
func TestStore_LoadCorrupt(t *testing.T) {
	for name, content := range map[string]string{
		"truncated": `[{"id": "a"`,
		"object":    `{"id": "a"}`,
		"null":      `null`,
		"empty":     "  \n",
	} {
		t.Run(name, func(t *testing.T) {
			store, _ := setupTestStore(t, Retention{})
			require.NoError(t, os.WriteFile(store.Path(), []byte(content), 0o600))

			_, err := store.Load()
			require.Error(t, err)

			var ioErr *IOError
			assert.True(t, errors.As(err, &ioErr))
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

// TestStore_CommitBeforeLoad verifies that the store refuses to write an
// unknown base state.
func TestStore_CommitBeforeLoad(t *testing.T) {
	store, _ := setupTestStore(t, Retention{})

	_, err := store.Commit([]Product{sampleProduct("a", "https://cwmall.kr/p/1")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.NoFileExists(t, store.Path())
}

// TestStore_CommitAndReload verifies the write, backup and reload cycle.
func TestStore_CommitAndReload(t *testing.T) {
	store, now := setupTestStore(t, Retention{})
	_, err := store.Load()
	require.NoError(t, err)

	first := []Product{sampleProduct("a", "https://cwmall.kr/p/1")}
	backup, err := store.Commit(first)
	require.NoError(t, err)
	assert.Empty(t, backup, "first write has nothing to back up")

	*now = now.Add(time.Minute)
	second := append(first, sampleProduct("b", "https://cwmall.kr/p/2"))
	backup, err = store.Commit(second)
	require.NoError(t, err)
	require.NotEmpty(t, backup)
	assert.Equal(t, "products-backup-20261017T090100.000Z.json", filepath.Base(backup))

	// The backup holds the previous catalog
	backedUp, err := ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, first, backedUp)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, second, loaded)

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// No temp files are left behind
	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

// TestStore_CommitRejectsInvalid verifies that a catalog breaking an
// invariant is not written and the primary file is untouched.
func TestStore_CommitRejectsInvalid(t *testing.T) {
	store, _ := setupTestStore(t, Retention{})
	_, err := store.Load()
	require.NoError(t, err)

	good := []Product{sampleProduct("a", "https://cwmall.kr/p/1")}
	_, err = store.Commit(good)
	require.NoError(t, err)

	bad := append(good, sampleProduct("a", "https://cwmall.kr/p/2"))
	_, err = store.Commit(bad)
	require.Error(t, err)

	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "verify", writeErr.Stage)
	assert.ErrorIs(t, err, ErrInvalidCatalog)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, good, loaded)
}

// commitInitial loads the store and commits products so the primary file
// exists, returning its bytes.
func commitInitial(t *testing.T, store *Store, products []Product) []byte {
	t.Helper()
	_, err := store.Load()
	require.NoError(t, err)
	_, err = store.Commit(products)
	require.NoError(t, err)
	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	return data
}

// TestStore_BackupFailureKeepsPrimary verifies that a failed backup aborts
// the commit before the primary file is touched.
func TestStore_BackupFailureKeepsPrimary(t *testing.T) {
	store, _ := setupTestStore(t, Retention{})
	before := commitInitial(t, store, []Product{sampleProduct("cw-1", "https://cwmall.kr/p/1")})

	// A regular file where the backup directory should be
	require.NoError(t, os.RemoveAll(store.backupDir))
	require.NoError(t, os.WriteFile(store.backupDir, []byte("not a directory"), 0o600))

	backupPath, err := store.Commit([]Product{sampleProduct("cw-2", "https://cwmall.kr/p/2")})
	require.Error(t, err)
	assert.Empty(t, backupPath)

	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "backup", writeErr.Stage)

	after, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after, "primary file must be byte-identical")
}

// TestStore_WriteFailureLeavesBackup verifies that when the primary write
// fails after the backup, the primary is unchanged and the backup reloads
// to the exact previous catalog.
func TestStore_WriteFailureLeavesBackup(t *testing.T) {
	store, now := setupTestStore(t, Retention{})
	previous := []Product{
		sampleProduct("cw-1", "https://cwmall.kr/p/1"),
		sampleProduct("cw-2", "https://cwmall.kr/p/2"),
	}
	before := commitInitial(t, store, previous)

	*now = baseTime.Add(time.Hour)
	store.writeFile = func(string, []byte) error { return errors.New("disk full") }

	backupPath, err := store.Commit([]Product{sampleProduct("cw-3", "https://cwmall.kr/p/3")})
	require.Error(t, err)

	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "write", writeErr.Stage)
	require.NotEmpty(t, backupPath)

	after, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	backupData, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, before, backupData)

	restored, err := ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, previous, restored)

	store.writeFile = writeFileAtomic
	_, err = store.Restore(filepath.Base(backupPath))
	require.NoError(t, err)
	reloaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, previous, reloaded)
}

// TestStore_CommitEmptyWritesArray verifies that an empty catalog is
// persisted as [] and not null.
func TestStore_CommitEmptyWritesArray(t *testing.T) {
	store, _ := setupTestStore(t, Retention{})
	_, err := store.Load()
	require.NoError(t, err)

	_, err = store.Commit(nil)
	require.NoError(t, err)

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	var raw []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotNil(t, raw)
}

// TestStore_BackupNameCollision verifies that two commits in the same
// instant produce distinct backups.
func TestStore_BackupNameCollision(t *testing.T) {
	store, _ := setupTestStore(t, Retention{})
	_, err := store.Load()
	require.NoError(t, err)

	p := []Product{sampleProduct("a", "https://cwmall.kr/p/1")}
	for i := 0; i < 3; i++ {
		_, err := store.Commit(p)
		require.NoError(t, err)
	}

	backups, err := store.ListBackups()
	require.NoError(t, err)
	assert.Len(t, backups, 2)
}

// TestStore_Prune verifies the count and age limits and that the newest
// backup survives.
func TestStore_Prune(t *testing.T) {
	store, now := setupTestStore(t, Retention{Keep: 3, MaxAge: 48 * time.Hour})
	_, err := store.Load()
	require.NoError(t, err)

	p := []Product{sampleProduct("a", "https://cwmall.kr/p/1")}
	for i := 0; i < 6; i++ {
		_, err := store.Commit(p)
		require.NoError(t, err)
		*now = now.Add(time.Hour)
	}

	backups, err := store.ListBackups()
	require.NoError(t, err)
	assert.Len(t, backups, 3, "commit prunes down to Keep")

	// Everything is older than MaxAge now, except that the newest stays
	*now = now.Add(30 * 24 * time.Hour)
	removed, err := store.Prune()
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	backups, err = store.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, "products-backup-20261017T140000.000Z.json", backups[0].Name)
}

// TestStore_Restore verifies that restoring a backup swaps the catalog and
// backs up the current one.
func TestStore_Restore(t *testing.T) {
	store, now := setupTestStore(t, Retention{})
	_, err := store.Load()
	require.NoError(t, err)

	first := []Product{sampleProduct("a", "https://cwmall.kr/p/1")}
	_, err = store.Commit(first)
	require.NoError(t, err)
	*now = now.Add(time.Minute)
	backup, err := store.Commit(nil)
	require.NoError(t, err)

	*now = now.Add(time.Minute)
	_, err = store.Restore(filepath.Base(backup))
	require.NoError(t, err)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, first, loaded)

	backups, err := store.ListBackups()
	require.NoError(t, err)
	assert.Len(t, backups, 2)

	_, err = store.Restore("../products.json")
	assert.ErrorIs(t, err, ErrBackupNotFound)
	_, err = store.Restore("products-backup-nope.json")
	assert.ErrorIs(t, err, ErrBackupNotFound)
}

// TestStore_ConcurrentCommits verifies that concurrent writers are
// serialized and the final file is always a complete catalog.
func TestStore_ConcurrentCommits(t *testing.T) {
	store, _ := setupTestStore(t, Retention{Keep: 2})
	_, err := store.Load()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Commit([]Product{sampleProduct("a", "https://cwmall.kr/p/1")})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	loaded, err := ReadFile(store.Path())
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}
