// Package extractor turns a rendered directory page into agent records.
//
// Each card block is flattened into its visible text lines, and the lines
// are mapped to record fields by position through a FieldRule table. The
// table is the only thing that has to change when the card markup does.
package extractor

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"agent-crawler/models"
)

// Card selectors used by the directory over time. ClassSelector matches the
// current markup, EntitySelector the older id based one.
const (
	ClassSelector  = `div[class*="card-container"]`
	EntitySelector = `[id*="Entity_180"]`
)

const (
	MobileMarker = "M:"
	OfficeMarker = "O:"
)

type Field string

const (
	FieldName     Field = "name"
	FieldPosition Field = "position"
	FieldCompany  Field = "company"
	FieldAddress  Field = "address"
)

// FieldRule assigns card lines [From, To) to Field, joined by a space. The
// field keeps the sentinel unless the card has at least To lines.
type FieldRule struct {
	Field Field
	From  int
	To    int
}

var DefaultMapping = []FieldRule{
	{Field: FieldName, From: 0, To: 1},
	{Field: FieldPosition, From: 1, To: 2},
	{Field: FieldCompany, From: 2, To: 3},
	{Field: FieldAddress, From: 3, To: 6},
}

type Extractor struct {
	selector string
	mapping  []FieldRule
}

func New(selector string, mapping []FieldRule) (*Extractor, error) {
	if _, err := cascadia.Compile(selector); err != nil {
		return nil, fmt.Errorf("invalid card selector %q: %w", selector, err)
	}
	if mapping == nil {
		mapping = DefaultMapping
	}
	for _, rule := range mapping {
		if rule.From < 0 || rule.To <= rule.From {
			return nil, fmt.Errorf("invalid line range [%d, %d) for field %s", rule.From, rule.To, rule.Field)
		}
		if _, ok := setters[rule.Field]; !ok {
			return nil, fmt.Errorf("unknown field %q", rule.Field)
		}
	}
	return &Extractor{selector: selector, mapping: mapping}, nil
}

// Extract parses htmlText and returns one record per non-empty card block,
// in document order. A page without cards yields an empty slice.
func (e *Extractor) Extract(htmlText string) ([]models.AgentRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	records := []models.AgentRecord{}
	doc.Find(e.selector).Each(func(i int, card *goquery.Selection) {
		lines := CardLines(card)
		if len(lines) == 0 {
			return
		}
		records = append(records, e.MapLines(lines))
	})

	return records, nil
}

// MapLines applies the field mapping and the contact scan to one card's lines.
func (e *Extractor) MapLines(lines []string) models.AgentRecord {
	rec := models.NewAgentRecord()

	for _, rule := range e.mapping {
		if len(lines) < rule.To {
			continue
		}
		setters[rule.Field](&rec, strings.Join(lines[rule.From:rule.To], " "))
	}

	for _, line := range lines {
		if v, ok := markerValue(line, MobileMarker); ok {
			rec.Mobile = &v
		}
		if v, ok := markerValue(line, OfficeMarker); ok {
			rec.Office = &v
		}
	}

	return rec
}

var setters = map[Field]func(*models.AgentRecord, string){
	FieldName:     func(r *models.AgentRecord, v string) { r.Name = v },
	FieldPosition: func(r *models.AgentRecord, v string) { r.Position = v },
	FieldCompany:  func(r *models.AgentRecord, v string) { r.Company = v },
	FieldAddress:  func(r *models.AgentRecord, v string) { r.Address = v },
}

// markerValue returns the text between the first and second occurrence of
// marker in line.
func markerValue(line, marker string) (string, bool) {
	parts := strings.Split(line, marker)
	if len(parts) < 2 {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// CardLines returns the trimmed, non-empty text lines of the selection in
// document order. Every text node is its own line.
func CardLines(sel *goquery.Selection) []string {
	var lines []string
	for _, n := range sel.Nodes {
		collectLines(n, &lines)
	}
	return lines
}

func collectLines(n *html.Node, lines *[]string) {
	switch n.Type {
	case html.TextNode:
		for _, line := range strings.Split(n.Data, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				*lines = append(*lines, line)
			}
		}
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template:
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectLines(c, lines)
	}
}
