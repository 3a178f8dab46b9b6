// Package pagination works out which listing pages follow the first one.
package pagination

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"agent-crawler/models"
)

// Planner infers the page identifiers to visit after the first page.
// An empty plan means the site has a single page.
type Planner interface {
	Plan(htmlText string) ([]models.PageID, error)
}

// PlanURLs runs p over htmlText and formats the plan against base.
func PlanURLs(p Planner, htmlText, base string) ([]string, error) {
	ids, err := p.Plan(htmlText)
	if err != nil {
		return nil, err
	}
	return URLs(base, ids), nil
}

// URLs formats ids into {base}/{n}-pg page URLs, keeping their order.
func URLs(base string, ids []models.PageID) []string {
	urls := make([]string, 0, len(ids))
	for _, id := range ids {
		urls = append(urls, models.PageURL(base, id))
	}
	return urls
}

// LinkTokenPlanner guesses the last page number from the pagination links:
// it scans the markup of every link whose href matches the link pattern for
// numeric tokens and takes the largest as the end page.
type LinkTokenPlanner struct {
	link     *regexp.Regexp
	token    *regexp.Regexp
	start    int
	maxPages int
}

// NewLinkTokenPlanner compiles the patterns. When tokenPattern has a capture
// group the first group is the token, otherwise the whole match. The plan
// holds end-1 identifiers beginning at startPage, capped at maxPages.
func NewLinkTokenPlanner(linkPattern, tokenPattern string, startPage, maxPages int) (*LinkTokenPlanner, error) {
	link, err := regexp.Compile(linkPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid link pattern %q: %w", linkPattern, err)
	}
	token, err := regexp.Compile(tokenPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid token pattern %q: %w", tokenPattern, err)
	}
	if startPage < 1 {
		return nil, fmt.Errorf("invalid start page %d", startPage)
	}
	if maxPages < 1 {
		return nil, fmt.Errorf("invalid max pages %d", maxPages)
	}
	return &LinkTokenPlanner{link: link, token: token, start: startPage, maxPages: maxPages}, nil
}

// Plan never returns more than maxPages identifiers, whatever the links claim.
func (p *LinkTokenPlanner) Plan(htmlText string) ([]models.PageID, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	end, ok := p.EndPage(doc)
	if !ok || end <= 1 {
		return []models.PageID{}, nil
	}

	count := min(end-1, p.maxPages)
	if p.start > math.MaxInt-count {
		return nil, fmt.Errorf("page range from %d overflows", p.start)
	}

	ids := make([]models.PageID, 0, count)
	for i := 0; i < count; i++ {
		ids = append(ids, models.PageID(p.start+i))
	}
	return ids, nil
}

// EndPage returns the largest page token found in the pagination links.
func (p *LinkTokenPlanner) EndPage(doc *goquery.Document) (int, bool) {
	var b strings.Builder
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !p.link.MatchString(href) {
			return
		}
		markup, err := goquery.OuterHtml(s)
		if err != nil {
			return
		}
		b.WriteString(markup)
		b.WriteByte('\n')
	})

	end, found := 0, false
	for _, m := range p.token.FindAllStringSubmatch(b.String(), -1) {
		tok := m[0]
		if len(m) > 1 {
			tok = m[1]
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		if !found || n > end {
			end, found = n, true
		}
	}
	return end, found
}
