package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/pevans/mallfed/catalog"
	"github.com/pevans/mallfed/history"
	"github.com/pevans/mallfed/merge"
)

const timeLayout = "2006-01-02 15:04"

// PrintProducts renders a product listing.
func PrintProducts(w io.Writer, products []catalog.Product) {
	t := NewTable(w)
	t.AppendHeader(table.Row{"ID", "Mall", "Title", "Price", "Category", "Verified"})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, Align: text.AlignRight}})
	for _, p := range products {
		price := formatWon(p.Price)
		if p.OriginalPrice > p.Price {
			price += " (" + formatWon(p.OriginalPrice) + ")"
		}
		t.AppendRow(table.Row{
			truncate(p.ID, 28), p.MallName, truncate(p.Title, 40), price, p.Category,
			p.LastVerified.Local().Format(timeLayout),
		})
	}
	t.Render()
}

// PrintStats renders catalog-wide counts.
func PrintStats(w io.Writer, s catalog.Stats) {
	fmt.Fprintf(w, "%d products from %d malls, %d discounted\n", s.TotalProducts, s.Malls, s.Discounted)
	if s.TotalProducts > 0 {
		fmt.Fprintf(w, "Prices %s to %s\n", formatWon(s.PriceMin), formatWon(s.PriceMax))
	}

	for _, group := range []struct {
		title  string
		counts map[string]int
	}{
		{"Region", s.Regions},
		{"Category", s.Categories},
		{"Mall", s.PerMall},
	} {
		if len(group.counts) == 0 {
			continue
		}
		fmt.Fprintln(w)
		t := NewTable(w)
		t.AppendHeader(table.Row{group.title, "Products"})
		for _, k := range sortedKeys(group.counts) {
			t.AppendRow(table.Row{k, group.counts[k]})
		}
		t.Render()
	}
}

// PrintViolations renders catalog invariant violations.
func PrintViolations(w io.Writer, violations []catalog.Violation) {
	t := NewTable(w)
	t.SetTitle("Invariant violations")
	t.AppendHeader(table.Row{"Entry", "ID", "Problem"})
	for _, v := range violations {
		t.AppendRow(table.Row{v.Index, truncate(v.ID, 40), v.Reason})
	}
	t.Render()
}

// PrintBackups renders a backup listing, newest first.
func PrintBackups(w io.Writer, backups []catalog.Backup) {
	t := NewTable(w)
	t.AppendHeader(table.Row{"Backup", "Created", "Size"})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 3, Align: text.AlignRight}})
	for _, b := range backups {
		t.AppendRow(table.Row{b.Name, b.CreatedAt.Local().Format("2006-01-02 15:04:05"), formatSize(b.Size)})
	}
	t.Render()
}

// PrintMallStatuses renders each mall's recent run health.
func PrintMallStatuses(w io.Writer, statuses []history.MallStatus) {
	t := NewTable(w)
	t.AppendHeader(table.Row{"Mall", "Region", "Last run", "Status", "Accepted", "Failures", "Last success", "Last error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	for _, st := range statuses {
		status := st.LastStatus
		if st.LastStatus != merge.StatusOK {
			status = text.FgRed.Sprint(st.LastStatus)
		}
		success := "never"
		if st.LastSuccessAt != nil {
			success = st.LastSuccessAt.Local().Format(timeLayout)
		}
		lastErr := ""
		if st.LastError != nil {
			lastErr = truncate(*st.LastError, 50)
		}
		t.AppendRow(table.Row{
			st.MallName, st.Region, st.LastRunAt.Local().Format(timeLayout), status,
			st.LastAccepted, st.ConsecutiveFailures, success, lastErr,
		})
	}
	t.Render()
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
