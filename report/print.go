package report

import (
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/pevans/mallfed/merge"
)

// maxPrintedErrors caps the error listing on the console; the JSON report
// keeps the full list.
const maxPrintedErrors = 20

// bucketOrder is the display order of price ranges.
var bucketOrder = []string{"under_10000", "10000_29999", "30000_49999", "50000_99999", "100000_plus"}

// NewTable returns a table writer with the house style.
func NewTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// Print renders a run summary for humans.
func Print(w io.Writer, s *merge.Summary) {
	status := "committed"
	if !s.Committed {
		status = "not committed"
	}
	fmt.Fprintf(w, "Run %s (%s, %s)\n", s.RunID, s.Mode, status)
	fmt.Fprintf(w, "Started %s, took %s\n\n",
		s.StartedAt.Local().Format("2006-01-02 15:04:05"),
		formatDuration(s.FinishedAt.Sub(s.StartedAt)))

	totals := NewTable(w)
	totals.AppendHeader(table.Row{"Scraped", "Accepted", "New", "Updated", "Duplicates", "Removed", "Errors", "Catalog"})
	totals.AppendRow(table.Row{s.Scraped, s.Accepted, s.New, s.Updated, s.Duplicates, s.Removed, s.Errors, s.TotalProducts})
	totals.Render()

	if len(s.Malls) > 0 {
		fmt.Fprintln(w)
		PrintMalls(w, s.Malls)
	}

	if len(s.Categories) > 0 {
		fmt.Fprintln(w)
		cats := NewTable(w)
		cats.AppendHeader(table.Row{"Category", "Products"})
		for _, k := range sortedKeys(s.Categories) {
			cats.AppendRow(table.Row{k, s.Categories[k]})
		}
		cats.Render()
	}

	if len(s.PriceRanges) > 0 {
		fmt.Fprintln(w)
		prices := NewTable(w)
		prices.AppendHeader(table.Row{"Price range", "Products"})
		for _, k := range bucketOrder {
			if n, ok := s.PriceRanges[k]; ok {
				prices.AppendRow(table.Row{k, n})
			}
		}
		prices.AppendFooter(table.Row{"min / max", formatWon(s.PriceMin) + " / " + formatWon(s.PriceMax)})
		prices.Render()
	}

	if len(s.Corrections) > 0 {
		fmt.Fprintln(w)
		corr := NewTable(w)
		corr.SetTitle("Price corrections")
		corr.AppendHeader(table.Row{"Mall", "Title", "Field", "Parsed", "Corrected"})
		for _, c := range s.Corrections {
			corr.AppendRow(table.Row{c.MallID, truncate(c.Title, 40), c.Field, c.Parsed, c.Corrected})
		}
		corr.Render()
	}

	if len(s.ErrorDetails) > 0 {
		fmt.Fprintln(w)
		errs := NewTable(w)
		errs.SetTitle("Rejected records")
		errs.AppendHeader(table.Row{"Mall", "Reason", "Detail"})
		for i, e := range s.ErrorDetails {
			if i == maxPrintedErrors {
				errs.AppendFooter(table.Row{"", "", fmt.Sprintf("%d more", s.Errors-maxPrintedErrors)})
				break
			}
			errs.AppendRow(table.Row{e.MallID, e.Reason, truncate(e.Detail, 60)})
		}
		errs.Render()
	}

	if len(s.Samples) > 0 {
		fmt.Fprintln(w)
		samples := NewTable(w)
		samples.SetTitle("New products")
		samples.AppendHeader(table.Row{"Mall", "Title", "Price", "Category"})
		for _, p := range s.Samples {
			samples.AppendRow(table.Row{p.MallName, truncate(p.Title, 40), formatWon(p.Price), p.Category})
		}
		samples.Render()
	}

	if s.BackupFile != "" {
		fmt.Fprintf(w, "\nBackup: %s\n", s.BackupFile)
	}
}

// PrintMalls renders per-mall outcomes.
func PrintMalls(w io.Writer, malls []merge.MallResult) {
	t := NewTable(w)
	t.AppendHeader(table.Row{"Mall", "Region", "Status", "Strategy", "Pages", "Found", "Accepted", "Rejected", "Time"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
	})
	for _, m := range malls {
		status := m.Status
		if m.Status != merge.StatusOK {
			status = text.FgRed.Sprint(m.Status)
		}
		t.AppendRow(table.Row{
			m.MallName, m.Region, status, m.Strategy,
			m.Pages, m.Candidates, m.Accepted, m.Rejected, formatDuration(m.Duration),
		})
	}
	t.Render()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// formatWon renders 32000 as "32,000원".
func formatWon(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := false
	if v < 0 {
		neg = true
		s = s[1:]
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if neg {
		return "-" + string(out) + "원"
	}
	return string(out) + "원"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
