package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// DefaultElementTimeout bounds WaitForElement when no timeout is given.
const DefaultElementTimeout = 10 * time.Second

type BrowserOptions struct {
	// ExecPath is the browser binary. Empty lets chromedp look it up.
	ExecPath string
	Headless bool
	// Timeout bounds a single Render call. Zero means no limit.
	Timeout time.Duration
	// WaitSelector, when set, is waited for after settling. A miss is logged
	// and the page is captured anyway.
	WaitSelector   string
	ElementTimeout time.Duration
	Logger         *zap.Logger
}

// Browser renders pages in one headless Chrome session.
type Browser struct {
	opts        BrowserOptions
	ctx         context.Context
	cancelAlloc context.CancelFunc
	cancelTab   context.CancelFunc
	logger      *zap.Logger
	closeOnce   sync.Once
}

// NewBrowser starts the browser and opens a blank tab. The session lives
// until Close, independent of ctx cancellation after startup.
func NewBrowser(ctx context.Context, opts BrowserOptions) (*Browser, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ElementTimeout <= 0 {
		opts.ElementTimeout = DefaultElementTimeout
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	b := &Browser{
		opts:        opts,
		ctx:         tabCtx,
		cancelAlloc: cancelAlloc,
		cancelTab:   cancelTab,
		logger:      logger,
	}

	if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.Debug("browser started", zap.Bool("headless", opts.Headless), zap.String("exec_path", opts.ExecPath))
	return b, nil
}

// Render navigates to url, gives client-side scripts settle to populate the
// DOM and returns the document's outer HTML.
func (b *Browser) Render(ctx context.Context, url string, settle time.Duration) (string, error) {
	runCtx, cancel := b.runContext(ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url), chromedp.Sleep(settle)); err != nil {
		return "", fmt.Errorf("failed to load %s: %w", url, err)
	}

	if b.opts.WaitSelector != "" {
		b.WaitForElement(runCtx, b.opts.WaitSelector, b.opts.ElementTimeout)
	}

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", url, err)
	}
	return html, nil
}

// WaitForElement polls until selector is present or timeout elapses. A miss
// is reported as "element not found" and false, never as an error.
func (b *Browser) WaitForElement(ctx context.Context, selector string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultElementTimeout
	}

	runCtx, cancel := b.runContext(ctx)
	defer cancel()
	waitCtx, cancelWait := context.WithTimeout(runCtx, timeout)
	defer cancelWait()

	err := chromedp.Run(waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery))
	if err == nil {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		b.logger.Info("element not found", zap.String("selector", selector), zap.Duration("timeout", timeout))
	} else {
		b.logger.Warn("element not found", zap.String("selector", selector), zap.Error(err))
	}
	return false
}

// runContext derives a tab context bounded by the render timeout that is
// also cancelled with the caller's ctx.
func (b *Browser) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if b.opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(b.ctx, b.opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(b.ctx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// Close shuts the tab and the browser process. Safe to call more than once.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		b.cancelTab()
		b.cancelAlloc()
		b.logger.Debug("browser closed")
	})
	return nil
}
