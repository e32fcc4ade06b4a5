// Package report persists run summaries as JSON documents and renders them
// for the console.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pevans/mallfed/merge"
)

const fileTimeFormat = "20060102T150405Z"

// ErrNoReports is returned by Latest when the directory holds no reports.
var ErrNoReports = errors.New("no run reports found")

// FileName returns the report file name for a summary.
func FileName(s *merge.Summary) string {
	name := "run-" + s.StartedAt.UTC().Format(fileTimeFormat)
	if s.RunID != "" {
		short, _, _ := strings.Cut(s.RunID, "-")
		name += "-" + short
	}
	return name + ".json"
}

// WriteJSON writes s to dir and returns the file path.
func WriteJSON(dir string, s *merge.Summary) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal run summary: %w", err)
	}

	path := filepath.Join(dir, FileName(s))
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("failed to write run report: %w", err)
	}
	return path, nil
}

// ReadJSON loads a report written by WriteJSON.
func ReadJSON(path string) (*merge.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run report: %w", err)
	}
	var s merge.Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse run report %s: %w", path, err)
	}
	return &s, nil
}

// List returns report paths in dir, newest first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read report directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "run-") || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	// Names start with a sortable timestamp
	slices.Sort(paths)
	slices.Reverse(paths)
	return paths, nil
}

// Latest loads the newest report in dir.
func Latest(dir string) (*merge.Summary, error) {
	paths, err := List(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, ErrNoReports
	}
	return ReadJSON(paths[0])
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(10 * time.Millisecond).String()
}
