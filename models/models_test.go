package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageURL(t *testing.T) {
	assert.Equal(t, "https://example.com/agents/3-pg", PageURL("https://example.com/agents", 3))
	assert.Equal(t, "https://example.com/agents/12-pg", PageURL("https://example.com/agents/", 12))
}

func TestAgentRecordJSONShape(t *testing.T) {
	mobile := "123-456-7890"
	rec := NewAgentRecord()
	rec.Name = "Jane Doe"
	rec.Mobile = &mobile

	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "Jane Doe", got["name"])
	assert.Equal(t, Sentinel, got["address"])
	assert.Equal(t, mobile, got["CONTACT M"])
	_, hasOffice := got["CONTACT O"]
	assert.False(t, hasOffice)
}

func TestCrawlStatsRecord(t *testing.T) {
	var s CrawlStats
	s.Record(PageStat{Page: 1, Records: 2, Size: 100, LoadTime: time.Second})
	s.Record(PageStat{Page: 2, Records: 5, Size: 50, LoadTime: 3 * time.Second, Skipped: true})

	assert.Equal(t, 2, s.PagesVisited)
	assert.Equal(t, 1, s.PagesSkipped)
	assert.Equal(t, 2, s.Records)
	assert.Equal(t, int64(150), s.TotalSize)
	assert.Equal(t, 2*time.Second, s.AvgLoadTime())
}
