package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pevans/mallfed/catalog"
	"github.com/pevans/mallfed/merge"
	"github.com/pevans/mallfed/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSummary(started time.Time) *merge.Summary {
	s := merge.NewSummary(merge.ModeMerge)
	s.RunID = "3f2a9c1e-0000-4000-8000-000000000000"
	s.StartedAt = started
	s.FinishedAt = started.Add(42 * time.Second)
	s.Scraped = 3
	s.Accepted = 2
	s.New = 2
	s.Errors = 1
	s.TotalProducts = 2
	s.Categories["agricultural"] = 2
	s.PriceRanges["100000_plus"] = 1
	s.PriceRanges["under_10000"] = 1
	s.PriceMin = 8900
	s.PriceMax = 310000
	s.Samples = []catalog.Product{{ID: "cw-1", Title: "철원 오대쌀 10kg", Price: 310000, MallName: "철원몰", Category: "agricultural"}}
	s.Corrections = []normalize.Correction{{MallID: "cheorwon", Title: "철원 오대쌀 10kg", Field: "price", Parsed: 310, Corrected: 310000, Multiplier: 1000}}
	s.ErrorDetails = []merge.RecordError{{MallID: "cheorwon", Reason: "unparsable_price", Detail: "문의"}}
	s.Malls = []merge.MallResult{
		{MallID: "cheorwon", MallName: "철원몰", Region: "강원", Status: merge.StatusOK, Strategy: "product-cards", Pages: 1, Candidates: 3, Accepted: 2, Rejected: 1},
		{MallID: "yanggu", MallName: "양구몰", Region: "강원", Status: merge.StatusFetchError, Error: "HTTP 503"},
	}
	s.Committed = true
	return s
}

// TestWriteJSON verifies the report file name and round trip.
func TestWriteJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	started := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	s := sampleSummary(started)

	path, err := WriteJSON(dir, s)
	require.NoError(t, err)
	assert.Equal(t, "run-20261017T093000Z-3f2a9c1e.json", filepath.Base(path))

	loaded, err := ReadJSON(path)
	require.NoError(t, err)
	assert.Equal(t, s.New, loaded.New)
	assert.Equal(t, s.Categories, loaded.Categories)
	assert.Equal(t, s.Corrections, loaded.Corrections)
	assert.Equal(t, s.Malls, loaded.Malls)
	assert.True(t, loaded.StartedAt.Equal(started))
}

// TestLatest verifies that the newest report is selected and that an empty
// directory is reported as such.
func TestLatest(t *testing.T) {
	dir := t.TempDir()

	_, err := Latest(dir)
	assert.ErrorIs(t, err, ErrNoReports)

	older := sampleSummary(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC))
	newer := sampleSummary(time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC))
	newer.New = 7
	_, err = WriteJSON(dir, newer)
	require.NoError(t, err)
	_, err = WriteJSON(dir, older)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	paths, err := List(dir)
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	latest, err := Latest(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, latest.New)
}

// TestPrint verifies that the console rendering includes the key figures.
func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	Print(&buf, sampleSummary(time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)))
	out := buf.String()

	assert.Contains(t, out, "committed")
	assert.Contains(t, out, "철원몰")
	assert.Contains(t, out, "fetch_error")
	assert.Contains(t, out, "unparsable_price")
	assert.Contains(t, out, "310,000원")
	assert.Contains(t, out, "8,900원")
	assert.Contains(t, out, "Price corrections")
}

// TestFormatWon verifies thousands separators.
func TestFormatWon(t *testing.T) {
	assert.Equal(t, "0원", formatWon(0))
	assert.Equal(t, "900원", formatWon(900))
	assert.Equal(t, "8,900원", formatWon(8900))
	assert.Equal(t, "1,310,000원", formatWon(1310000))
	assert.Equal(t, "-5,000원", formatWon(-5000))
}
