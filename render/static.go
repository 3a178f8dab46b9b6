// Package render fetches listing pages as HTML.
//
// Browser drives headless Chrome through chromedp and is what the directory
// needs, since its cards are filled in by client-side scripts. Static is a
// plain HTTP GET for server-rendered pages and local fixtures.
package render

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

type Static struct {
	client *resty.Client
}

func NewStatic(userAgent string, timeout time.Duration) *Static {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	return &Static{client: client}
}

// Render fetches url. There is nothing to settle without a script engine,
// so settle is ignored.
func (s *Static) Render(ctx context.Context, url string, settle time.Duration) (string, error) {
	res, err := s.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if res.IsError() {
		return "", fmt.Errorf("failed to fetch %s: status %d", url, res.StatusCode())
	}
	return res.String(), nil
}

func (s *Static) Close() error {
	return nil
}
