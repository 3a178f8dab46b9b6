// summary/summary.go
package summary

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"agent-crawler/models"
)

// Print writes a per-page table and the run totals to w.
func Print(w io.Writer, stats *models.CrawlStats, runErr error) {
	fmt.Fprintln(w, "📈 Crawl Summary")
	fmt.Fprintln(w, "================")
	fmt.Fprintf(w, "Run:      %s\n", stats.RunID)
	fmt.Fprintf(w, "Base URL: %s\n", stats.BaseURL)
	fmt.Fprintln(w)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Page", "URL", "Agents", "Size", "Load Time"})
	for _, p := range stats.Pages {
		agents := fmt.Sprint(p.Records)
		if p.Skipped {
			agents = "duplicate"
		}
		t.AppendRow(table.Row{p.Page, p.URL, agents, formatBytes(p.Size), p.LoadTime.Round(time.Millisecond)})
	}
	t.AppendFooter(table.Row{"", "Total", stats.Records, formatBytes(stats.TotalSize), stats.Duration.Round(time.Millisecond)})
	t.SetStyle(table.StyleRounded)
	t.Render()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Pages planned:  %d\n", stats.PagesPlanned)
	fmt.Fprintf(w, "Pages visited:  %d\n", stats.PagesVisited)
	fmt.Fprintf(w, "Pages skipped:  %d\n", stats.PagesSkipped)
	fmt.Fprintf(w, "Avg load time:  %s\n", stats.AvgLoadTime().Round(time.Millisecond))
	fmt.Fprintf(w, "Rate:           %s\n", formatRate(stats.PagesVisited, stats.Duration))

	if runErr != nil {
		fmt.Fprintf(w, "\n❌ Unable to complete: %v\n", runErr)
		return
	}
	fmt.Fprintf(w, "\n✅ Saved %d agents\n", stats.Records)
}

func formatRate(pages int, d time.Duration) string {
	if d <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.2f pages/second", float64(pages)/d.Seconds())
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
