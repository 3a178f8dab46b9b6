package summary

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"agent-crawler/models"
)

func TestPrint(t *testing.T) {
	stats := &models.CrawlStats{RunID: "run-1", BaseURL: "https://example.com/agents", PagesPlanned: 1}
	stats.Record(models.PageStat{Page: 1, URL: "https://example.com/agents", Records: 2, Size: 2048, LoadTime: time.Second})
	stats.Record(models.PageStat{Page: 2, URL: "https://example.com/agents/2-pg", Size: 10, Skipped: true})
	stats.Duration = 2 * time.Second

	var buf bytes.Buffer
	Print(&buf, stats, nil)
	out := buf.String()

	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "https://example.com/agents/2-pg")
	assert.Contains(t, out, "duplicate")
	assert.Contains(t, out, "2.0 KB")
	assert.Contains(t, out, "1.00 pages/second")
	assert.Contains(t, out, "Saved 2 agents")
}

func TestPrintFailure(t *testing.T) {
	var buf bytes.Buffer
	Print(&buf, &models.CrawlStats{RunID: "run-2"}, errors.New("render failure"))

	assert.Contains(t, buf.String(), "Unable to complete: render failure")
	assert.Contains(t, buf.String(), "N/A")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "1.0 MB", formatBytes(1<<20))
}
