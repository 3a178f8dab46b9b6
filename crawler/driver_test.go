package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"agent-crawler/extractor"
	"agent-crawler/models"
	"agent-crawler/pagination"
)

const baseURL = "https://agents.example.com/eng/associates/seattle-wa-usa"

func card(name string) string {
	return fmt.Sprintf(`<div class="card-container">
  <p>%s</p><p>Broker</p><p>Acme Realty</p>
  <p>1 Main St</p><p>Floor 2</p><p>Seattle, WA</p>
  <p>M: 206-555-0000</p>
</div>`, name)
}

func listing(pageLinks []int, names ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, n := range names {
		b.WriteString(card(n))
	}
	b.WriteString(`<nav>`)
	for _, p := range pageLinks {
		fmt.Fprintf(&b, `<a href="/eng/associates/seattle-wa-usa/%d-pg">%d</a>`, p, p)
	}
	b.WriteString(`</nav></body></html>`)
	return b.String()
}

type fakeRenderer struct {
	pages   map[string]string
	fail    map[string]error
	visited []string
	settles []time.Duration
	closed  int
}

func (f *fakeRenderer) Render(_ context.Context, url string, settle time.Duration) (string, error) {
	f.visited = append(f.visited, url)
	f.settles = append(f.settles, settle)
	if err := f.fail[url]; err != nil {
		return "", err
	}
	html, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("no fixture for %s", url)
	}
	return html, nil
}

func (f *fakeRenderer) Close() error {
	f.closed++
	return nil
}

type memorySink struct {
	batches []models.Batch
	err     error
}

func (m *memorySink) Append(_ context.Context, b models.Batch) error {
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, b)
	return nil
}

func (m *memorySink) names() []string {
	var out []string
	for _, b := range m.batches {
		for _, r := range b.Records {
			out = append(out, r.Name)
		}
	}
	return out
}

type countingPacer struct{ waits int }

func (c *countingPacer) Wait(ctx context.Context) error {
	c.waits++
	return ctx.Err()
}

type failingExtractor struct{}

func (failingExtractor) Extract(string) ([]models.AgentRecord, error) {
	return nil, errors.New("unreadable markup")
}

func newDriver(t *testing.T, r Renderer, s Sink, p Pacer, opts Options) *Driver {
	t.Helper()
	ex, err := extractor.New(extractor.ClassSelector, nil)
	require.NoError(t, err)
	planner, err := pagination.NewLinkTokenPlanner("-pg", `(\d+)-pg`, 2, 100)
	require.NoError(t, err)
	if opts.BaseURL == "" {
		opts.BaseURL = baseURL
	}
	return New(r, ex, planner, s, p, opts)
}

func TestRunTwoPages(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		baseURL:           listing([]int{2}, "Ann", "Bob"),
		baseURL + "/2-pg": listing([]int{1}, "Cat"),
	}}
	s := &memorySink{}
	pacer := &countingPacer{}

	var states []State
	d := newDriver(t, r, s, pacer, Options{
		RunID:           "run-1",
		FirstPageSettle: 2 * time.Second,
		PageSettle:      time.Second,
		OnTransition:    func(_, to State, _ models.PageID) { states = append(states, to) },
	})

	stats, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{baseURL, baseURL + "/2-pg"}, r.visited)
	assert.Equal(t, []time.Duration{2 * time.Second, time.Second}, r.settles)
	assert.Equal(t, []string{"Ann", "Bob", "Cat"}, s.names())
	require.Len(t, s.batches, 2)
	assert.Equal(t, models.PageID(1), s.batches[0].Page)
	assert.Equal(t, models.PageID(2), s.batches[1].Page)
	assert.Equal(t, "run-1", s.batches[1].RunID)

	assert.Equal(t, 3, stats.Records)
	assert.Equal(t, 1, stats.PagesPlanned)
	assert.Equal(t, 2, stats.PagesVisited)
	assert.Equal(t, 1, pacer.waits)
	assert.Equal(t, 1, r.closed)

	assert.Equal(t, []State{StateFirstPageLoaded, StatePlanning, StatePaginating, StateDone}, states)
	assert.Equal(t, StateDone, d.State())
}

func TestRunSinglePageSite(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		baseURL: listing(nil, "Ann"),
	}}
	s := &memorySink{}

	stats, err := newDriver(t, r, s, rate.NewLimiter(rate.Inf, 1), Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{baseURL}, r.visited)
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, 0, stats.PagesPlanned)
	assert.NotEmpty(t, stats.RunID)
}

func TestRunCapsPlanFromOversizedLink(t *testing.T) {
	first := `<html><body>` + card("Ann") + `<a href="/eng/associates/seattle-wa-usa/123456789012345-pg">last</a></body></html>`
	r := &fakeRenderer{pages: map[string]string{
		baseURL:           first,
		baseURL + "/2-pg": listing(nil, "Bob"),
		baseURL + "/3-pg": listing(nil, "Cat"),
	}}
	s := &memorySink{}

	ex, err := extractor.New(extractor.ClassSelector, nil)
	require.NoError(t, err)
	planner, err := pagination.NewLinkTokenPlanner("-pg", `(\d+)-pg`, 2, 2)
	require.NoError(t, err)

	d := New(r, ex, planner, s, rate.NewLimiter(rate.Inf, 1), Options{BaseURL: baseURL})
	stats, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PagesPlanned)
	assert.Equal(t, []string{"Ann", "Bob", "Cat"}, s.names())
	assert.Equal(t, StateDone, d.State())
}

func TestRunFirstPageRenderFailure(t *testing.T) {
	boom := errors.New("navigation failed")
	r := &fakeRenderer{fail: map[string]error{baseURL: boom}}
	s := &memorySink{}

	d := newDriver(t, r, s, nil, Options{})
	_, err := d.Run(context.Background())
	require.Error(t, err)

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindRender, kind)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateFailed, d.State())
	assert.Equal(t, 1, r.closed)
	assert.Empty(t, s.batches)
}

func TestRunPaginationFailureKeepsEarlierBatches(t *testing.T) {
	r := &fakeRenderer{
		pages: map[string]string{
			baseURL:           listing([]int{2, 3}, "Ann"),
			baseURL + "/2-pg": listing(nil, "Bob"),
		},
		fail: map[string]error{baseURL + "/3-pg": errors.New("timeout")},
	}
	s := &memorySink{}

	d := newDriver(t, r, s, nil, Options{})
	stats, err := d.Run(context.Background())
	require.Error(t, err)

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindRender, ce.Kind)
	assert.Equal(t, models.PageID(3), ce.Page)
	assert.Equal(t, baseURL+"/3-pg", ce.URL)
	assert.Equal(t, []string{"Ann", "Bob"}, s.names())
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, StateFailed, d.State())
	assert.Equal(t, 1, r.closed)
}

func TestRunSinkFailure(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{baseURL: listing(nil, "Ann")}}
	s := &memorySink{err: errors.New("disk full")}

	_, err := newDriver(t, r, s, nil, Options{}).Run(context.Background())
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindSink, kind)
	assert.Equal(t, 1, r.closed)
}

func TestRunParseFailure(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{baseURL: listing(nil, "Ann")}}
	planner, err := pagination.NewLinkTokenPlanner("-pg", `(\d+)-pg`, 2, 100)
	require.NoError(t, err)

	d := New(r, failingExtractor{}, planner, &memorySink{}, nil, Options{BaseURL: baseURL})
	_, err = d.Run(context.Background())
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindParse, kind)
	assert.Contains(t, err.Error(), "parse failure on page 1")
}

func TestRunSkipsDuplicatePages(t *testing.T) {
	first := listing([]int{2, 3}, "Ann")
	r := &fakeRenderer{pages: map[string]string{
		baseURL:           first,
		baseURL + "/2-pg": listing(nil, "Bob"),
		baseURL + "/3-pg": first,
	}}
	s := &memorySink{}

	stats, err := newDriver(t, r, s, nil, Options{SkipDuplicatePages: true}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Ann", "Bob"}, s.names())
	assert.Equal(t, 3, stats.PagesVisited)
	assert.Equal(t, 1, stats.PagesSkipped)
}

func TestRunCancelled(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		baseURL:           listing([]int{2}, "Ann"),
		baseURL + "/2-pg": listing(nil, "Bob"),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newDriver(t, r, &memorySink{}, nil, Options{})
	_, err := d.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	kind, _ := KindOf(err)
	assert.Equal(t, KindRender, kind)
	assert.Empty(t, r.visited)
	assert.Equal(t, 1, r.closed)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "render", KindRender.String())
	assert.Equal(t, "parse", KindParse.String())
	assert.Equal(t, "sink", KindSink.String())
	assert.Equal(t, "paginating", StatePaginating.String())

	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}
