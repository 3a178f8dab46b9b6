// crawler/driver.go
package crawler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agent-crawler/models"
	"agent-crawler/pagination"
)

type Renderer interface {
	Render(ctx context.Context, url string, settle time.Duration) (string, error)
	Close() error
}

type Extractor interface {
	Extract(htmlText string) ([]models.AgentRecord, error)
}

type Sink interface {
	Append(ctx context.Context, batch models.Batch) error
}

// Pacer spaces out page visits. *rate.Limiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context) error
}

type Options struct {
	BaseURL string
	// RunID tags every batch. A random one is generated when empty.
	RunID           string
	FirstPageSettle time.Duration
	PageSettle      time.Duration
	// SkipDuplicatePages drops pages whose HTML matches a page already seen.
	SkipDuplicatePages bool
	Logger             *zap.Logger
	// OnTransition is called after every state change.
	OnTransition func(from, to State, page models.PageID)
}

// Driver visits the first page, plans the rest and walks them in order,
// flushing each page's agents to the sink as it goes. It owns the renderer
// and closes it when Run returns.
type Driver struct {
	renderer  Renderer
	extractor Extractor
	planner   pagination.Planner
	sink      Sink
	pacer     Pacer
	opts      Options
	logger    *zap.Logger
	dedup     *DuplicateDetector

	state State
	page  models.PageID
}

// New builds a driver. pacer may be nil.
func New(renderer Renderer, extractor Extractor, planner pagination.Planner, sink Sink, pacer Pacer, opts Options) *Driver {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	return &Driver{
		renderer:  renderer,
		extractor: extractor,
		planner:   planner,
		sink:      sink,
		pacer:     pacer,
		opts:      opts,
		logger:    logger.With(zap.String("run_id", opts.RunID)),
		dedup:     NewDuplicateDetector(),
		state:     StateInit,
	}
}

func (d *Driver) RunID() string {
	return d.opts.RunID
}

func (d *Driver) State() State {
	return d.state
}

// Page is the page currently or last being processed.
func (d *Driver) Page() models.PageID {
	return d.page
}

// Run crawls the whole listing. Any failure ends the run with an *Error;
// the stats collected up to that point are returned either way.
func (d *Driver) Run(ctx context.Context) (*models.CrawlStats, error) {
	start := time.Now()
	stats := &models.CrawlStats{
		RunID:   d.opts.RunID,
		BaseURL: d.opts.BaseURL,
	}

	defer func() {
		if err := d.renderer.Close(); err != nil {
			d.logger.Warn("failed to close renderer", zap.Error(err))
		}
	}()

	err := d.run(ctx, stats)
	stats.Duration = time.Since(start)
	if err != nil {
		d.setState(StateFailed, d.page)
		return stats, err
	}

	d.setState(StateDone, d.page)
	return stats, nil
}

func (d *Driver) run(ctx context.Context, stats *models.CrawlStats) error {
	base := d.opts.BaseURL

	html, loadTime, err := d.render(ctx, 1, base, d.opts.FirstPageSettle)
	if err != nil {
		return err
	}
	d.setState(StateFirstPageLoaded, 1)

	if err := d.process(ctx, 1, base, html, loadTime, stats); err != nil {
		return err
	}

	d.setState(StatePlanning, 1)
	ids, err := d.planner.Plan(html)
	if err != nil {
		return &Error{Kind: KindParse, Page: 1, URL: base, Err: err}
	}
	stats.PagesPlanned = len(ids)
	d.logger.Info("planned pages", zap.Int("count", len(ids)))

	for i, url := range pagination.URLs(base, ids) {
		id := ids[i]
		d.setState(StatePaginating, id)

		if d.pacer != nil {
			if err := d.pacer.Wait(ctx); err != nil {
				return &Error{Kind: KindRender, Page: id, URL: url, Err: err}
			}
		}

		html, loadTime, err := d.render(ctx, id, url, d.opts.PageSettle)
		if err != nil {
			return err
		}
		if err := d.process(ctx, id, url, html, loadTime, stats); err != nil {
			return err
		}
	}

	return nil
}

func (d *Driver) render(ctx context.Context, page models.PageID, url string, settle time.Duration) (string, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, &Error{Kind: KindRender, Page: page, URL: url, Err: err}
	}

	start := time.Now()
	html, err := d.renderer.Render(ctx, url, settle)
	if err != nil {
		return "", 0, &Error{Kind: KindRender, Page: page, URL: url, Err: err}
	}
	return html, time.Since(start), nil
}

func (d *Driver) process(ctx context.Context, page models.PageID, url, html string, loadTime time.Duration, stats *models.CrawlStats) error {
	stat := models.PageStat{
		Page:     page,
		URL:      url,
		Size:     int64(len(html)),
		LoadTime: loadTime,
	}

	if d.opts.SkipDuplicatePages && d.dedup.IsDuplicate(html) {
		d.logger.Info("duplicate page skipped", zap.Int("page", int(page)), zap.String("url", url))
		stat.Skipped = true
		stats.Record(stat)
		return nil
	}

	records, err := d.extractor.Extract(html)
	if err != nil {
		return &Error{Kind: KindParse, Page: page, URL: url, Err: err}
	}

	batch := models.Batch{
		RunID:   d.opts.RunID,
		Page:    page,
		URL:     url,
		Records: records,
	}
	if err := d.sink.Append(ctx, batch); err != nil {
		return &Error{Kind: KindSink, Page: page, URL: url, Err: err}
	}

	stat.Records = len(records)
	stats.Record(stat)
	d.logger.Info("saved agents", zap.Int("page", int(page)), zap.Int("count", len(records)))
	return nil
}

func (d *Driver) setState(to State, page models.PageID) {
	from := d.state
	d.state, d.page = to, page
	d.logger.Debug("state", zap.Stringer("from", from), zap.Stringer("to", to), zap.Int("page", int(page)))
	if d.opts.OnTransition != nil {
		d.opts.OnTransition(from, to, page)
	}
}
