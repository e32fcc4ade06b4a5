// Package history records run outcomes in SQLite so that operators can see
// which malls keep failing.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pevans/mallfed/merge"
)

// Custom errors for history operations
var (
	ErrRunNotFound = errors.New("run not found")
	ErrNoRunID     = errors.New("run summary has no run id")
)

// Store manages run history using SQLite.
type Store struct {
	db *sql.DB
}

// Run is one recorded collection run.
type Run struct {
	RunID         string    `json:"runId"`
	Mode          string    `json:"mode"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
	Scraped       int       `json:"scraped"`
	Accepted      int       `json:"accepted"`
	New           int       `json:"new"`
	Updated       int       `json:"updated"`
	Duplicates    int       `json:"duplicates"`
	Removed       int       `json:"removed"`
	Errors        int       `json:"errors"`
	TotalProducts int       `json:"totalProducts"`
	Committed     bool      `json:"committed"`
	BackupFile    *string   `json:"backupFile,omitempty"`
}

// MallRun is the outcome of one mall within a run.
type MallRun struct {
	RunID      string        `json:"runId"`
	MallID     string        `json:"mallId"`
	MallName   string        `json:"mallName"`
	Region     string        `json:"region"`
	Status     string        `json:"status"`
	Strategy   *string       `json:"strategy,omitempty"`
	Pages      int           `json:"pages"`
	Candidates int           `json:"candidates"`
	Accepted   int           `json:"accepted"`
	Rejected   int           `json:"rejected"`
	Error      *string       `json:"error,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"durationNs"`
}

// MallStatus summarizes a mall's recent runs.
type MallStatus struct {
	MallID              string     `json:"mallId"`
	MallName            string     `json:"mallName"`
	Region              string     `json:"region"`
	LastStatus          string     `json:"lastStatus"`
	LastRunAt           time.Time  `json:"lastRunAt"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastAccepted        int        `json:"lastAccepted"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastError           *string    `json:"lastError,omitempty"`
}

// RunFilter represents pagination options for listing runs.
type RunFilter struct {
	Limit  int
	Offset int
}

// NewStore opens (creating if needed) the history database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the tables if they don't exist.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		scraped INTEGER NOT NULL DEFAULT 0,
		accepted INTEGER NOT NULL DEFAULT 0,
		new_count INTEGER NOT NULL DEFAULT 0,
		updated INTEGER NOT NULL DEFAULT 0,
		duplicates INTEGER NOT NULL DEFAULT 0,
		removed INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0,
		total_products INTEGER NOT NULL DEFAULT 0,
		committed INTEGER NOT NULL DEFAULT 0,
		backup_file TEXT
	);
	CREATE TABLE IF NOT EXISTS mall_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		mall_id TEXT NOT NULL,
		mall_name TEXT NOT NULL,
		region TEXT NOT NULL,
		status TEXT NOT NULL,
		strategy TEXT,
		pages INTEGER NOT NULL DEFAULT 0,
		candidates INTEGER NOT NULL DEFAULT 0,
		accepted INTEGER NOT NULL DEFAULT 0,
		rejected INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_mall_runs_mall ON mall_runs(mall_id, started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun stores a run summary and its per-mall outcomes in one
// transaction.
func (s *Store) RecordRun(sum *merge.Summary) error {
	if sum.RunID == "" {
		return ErrNoRunID
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.Exec(`
		INSERT INTO runs (
			run_id, mode, started_at, finished_at, scraped, accepted,
			new_count, updated, duplicates, removed, errors,
			total_products, committed, backup_file
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sum.RunID, sum.Mode,
		formatTime(&sum.StartedAt), formatTime(&sum.FinishedAt),
		sum.Scraped, sum.Accepted, sum.New, sum.Updated, sum.Duplicates,
		sum.Removed, sum.Errors, sum.TotalProducts, sum.Committed,
		nullString(sum.BackupFile),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO mall_runs (
			run_id, mall_id, mall_name, region, status, strategy, pages,
			candidates, accepted, rejected, error, started_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare mall run insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range sum.Malls {
		_, err := stmt.Exec(
			sum.RunID, m.MallID, m.MallName, m.Region, m.Status,
			nullString(m.Strategy), m.Pages, m.Candidates, m.Accepted,
			m.Rejected, nullString(m.Error), formatTime(&sum.StartedAt),
			m.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert mall run %s: %w", m.MallID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

const runColumns = `
	run_id, mode, started_at, finished_at, scraped, accepted, new_count,
	updated, duplicates, removed, errors, total_products, committed, backup_file
`

// GetRun retrieves a run by id.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE run_id = ?", runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs, newest first.
func (s *Store) ListRuns(filter RunFilter) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC"
	query += limitClause(filter.Limit, filter.Offset)

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListMallRuns lists a mall's outcomes, newest first. A limit of zero
// returns all of them.
func (s *Store) ListMallRuns(mallID string, limit int) ([]MallRun, error) {
	return s.queryMallRuns("WHERE mall_id = ?", []any{mallID}, limit)
}

// RunMalls lists the per-mall outcomes of one run.
func (s *Store) RunMalls(runID string) ([]MallRun, error) {
	return s.queryMallRuns("WHERE run_id = ?", []any{runID}, 0)
}

func (s *Store) queryMallRuns(where string, args []any, limit int) ([]MallRun, error) {
	query := `
		SELECT run_id, mall_id, mall_name, region, status, strategy, pages,
		       candidates, accepted, rejected, error, started_at, duration_ms
		FROM mall_runs
	` + where + " ORDER BY started_at DESC, id DESC" + limitClause(limit, 0)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query mall runs: %w", err)
	}
	defer rows.Close()

	var runs []MallRun
	for rows.Next() {
		var m MallRun
		var strategy, lastError sql.NullString
		var startedAt string
		var durationMs int64

		err := rows.Scan(
			&m.RunID, &m.MallID, &m.MallName, &m.Region, &m.Status,
			&strategy, &m.Pages, &m.Candidates, &m.Accepted, &m.Rejected,
			&lastError, &startedAt, &durationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mall run: %w", err)
		}

		m.StartedAt = parseTime(startedAt)
		m.Duration = time.Duration(durationMs) * time.Millisecond
		if strategy.Valid {
			m.Strategy = &strategy.String
		}
		if lastError.Valid {
			m.Error = &lastError.String
		}
		runs = append(runs, m)
	}
	return runs, rows.Err()
}

// ConsecutiveFailures counts the mall's most recent runs that did not end
// in success, stopping at the first success.
func (s *Store) ConsecutiveFailures(mallID string) (int, error) {
	runs, err := s.ListMallRuns(mallID, 0)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range runs {
		if r.Status == merge.StatusOK {
			break
		}
		n++
	}
	return n, nil
}

// MallStatuses summarizes every mall that appears in the history, ordered
// by mall id.
func (s *Store) MallStatuses() ([]MallStatus, error) {
	runs, err := s.queryMallRuns("", nil, 0)
	if err != nil {
		return nil, err
	}

	// Runs arrive newest first, so the first row per mall is its latest
	var statuses []MallStatus
	index := map[string]int{}
	settled := map[string]bool{}

	for _, r := range runs {
		i, seen := index[r.MallID]
		if !seen {
			statuses = append(statuses, MallStatus{
				MallID:       r.MallID,
				MallName:     r.MallName,
				Region:       r.Region,
				LastStatus:   r.Status,
				LastRunAt:    r.StartedAt,
				LastAccepted: r.Accepted,
				LastError:    r.Error,
			})
			i = len(statuses) - 1
			index[r.MallID] = i
		}
		if settled[r.MallID] {
			continue
		}
		if r.Status == merge.StatusOK {
			t := r.StartedAt
			statuses[i].LastSuccessAt = &t
			settled[r.MallID] = true
			continue
		}
		statuses[i].ConsecutiveFailures++
	}

	sortStatuses(statuses)
	return statuses, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var startedAt, finishedAt string
	var backupFile sql.NullString

	err := row.Scan(
		&r.RunID, &r.Mode, &startedAt, &finishedAt, &r.Scraped, &r.Accepted,
		&r.New, &r.Updated, &r.Duplicates, &r.Removed, &r.Errors,
		&r.TotalProducts, &r.Committed, &backupFile,
	)
	if err != nil {
		return nil, err
	}

	r.StartedAt = parseTime(startedAt)
	r.FinishedAt = parseTime(finishedAt)
	if backupFile.Valid {
		r.BackupFile = &backupFile.String
	}
	return &r, nil
}

func sortStatuses(statuses []MallStatus) {
	slices.SortFunc(statuses, func(a, b MallStatus) int {
		return strings.Compare(a.MallID, b.MallID)
	})
}

func limitClause(limit, offset int) string {
	var clause string
	if limit > 0 {
		clause += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		if limit <= 0 {
			clause += " LIMIT -1"
		}
		clause += fmt.Sprintf(" OFFSET %d", offset)
	}
	return clause
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// timeFormat is fixed width so that stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Helper functions for time formatting
func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err == nil {
		return t
	}
	t, err = time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t.Truncate(0)
}
