// models/models.go
package models

import (
	"fmt"
	"strings"
	"time"
)

// Sentinel is stored in any positional field the card did not provide.
const Sentinel = "N/A"

type AgentRecord struct {
	Name     string  `json:"name" db:"name"`
	Position string  `json:"position" db:"position"`
	Company  string  `json:"company" db:"company"`
	Address  string  `json:"address" db:"address"`
	Mobile   *string `json:"CONTACT M,omitempty" db:"mobile"`
	Office   *string `json:"CONTACT O,omitempty" db:"office"`
}

// NewAgentRecord returns a record with every positional field set to Sentinel.
func NewAgentRecord() AgentRecord {
	return AgentRecord{
		Name:     Sentinel,
		Position: Sentinel,
		Company:  Sentinel,
		Address:  Sentinel,
	}
}

// PageID is the numeric index of a directory listing page. The base URL is page 1.
type PageID int

// PageURL builds {base}/{n}-pg.
func PageURL(base string, id PageID) string {
	return fmt.Sprintf("%s/%d-pg", strings.TrimRight(base, "/"), int(id))
}

// Batch is everything extracted from a single page visit.
type Batch struct {
	RunID   string
	Page    PageID
	URL     string
	Records []AgentRecord
}

type PageStat struct {
	Page     PageID        `json:"page"`
	URL      string        `json:"url"`
	Records  int           `json:"records"`
	Size     int64         `json:"size"`
	LoadTime time.Duration `json:"load_time"`
	Skipped  bool          `json:"skipped"`
}

type CrawlStats struct {
	RunID        string        `json:"run_id"`
	BaseURL      string        `json:"base_url"`
	PagesPlanned int           `json:"pages_planned"`
	PagesVisited int           `json:"pages_visited"`
	PagesSkipped int           `json:"pages_skipped"`
	Records      int           `json:"records"`
	TotalSize    int64         `json:"total_size"`
	Duration     time.Duration `json:"duration"`
	Pages        []PageStat    `json:"pages"`
}

// Record adds one page visit to the totals.
func (s *CrawlStats) Record(p PageStat) {
	s.Pages = append(s.Pages, p)
	s.PagesVisited++
	s.TotalSize += p.Size
	if p.Skipped {
		s.PagesSkipped++
		return
	}
	s.Records += p.Records
}

// AvgLoadTime is the mean render time over visited pages.
func (s *CrawlStats) AvgLoadTime() time.Duration {
	if len(s.Pages) == 0 {
		return 0
	}
	var total time.Duration
	for _, p := range s.Pages {
		total += p.LoadTime
	}
	return total / time.Duration(len(s.Pages))
}
