package crawler

import (
	"errors"
	"fmt"

	"agent-crawler/models"
)

// Kind classifies why a crawl failed.
type Kind int

const (
	KindRender Kind = iota + 1
	KindParse
	KindSink
)

func (k Kind) String() string {
	switch k {
	case KindRender:
		return "render"
	case KindParse:
		return "parse"
	case KindSink:
		return "sink"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by Driver.Run for every failure.
type Error struct {
	Kind Kind
	Page models.PageID
	URL  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failure on page %d (%s): %v", e.Kind, e.Page, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return 0, false
}
