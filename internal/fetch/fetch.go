// Package fetch wraps feed retrieval and parsing behind a stateless function.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

// DefaultTimeout bounds a single fetch-and-parse operation.
const DefaultTimeout = 10 * time.Second

// Options carries the fetch configuration explicitly; there is no shared
// parser state between calls.
type Options struct {
	Timeout   time.Duration
	UserAgent string
}

// Result is the parsed feed handed to callers.
type Result struct {
	Title       string
	Link        string
	Description string
	FeedType    string // "rss" or "atom" as reported by the parser
	Items       []*gofeed.Item
}

// ParseFunc fetches and parses the feed at url. Implementations apply their
// own timeout and identifying request header.
type ParseFunc func(ctx context.Context, url string) (*Result, error)

// NewParser returns a ParseFunc built on gofeed with the given options.
func NewParser(opts Options) ParseFunc {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	client := &http.Client{Timeout: opts.Timeout}
	return func(ctx context.Context, url string) (*Result, error) {
		p := gofeed.NewParser()
		p.Client = client
		p.UserAgent = opts.UserAgent
		parsed, err := p.ParseURLWithContext(url, ctx)
		if err != nil {
			return nil, fmt.Errorf("parse feed %s: %w", url, err)
		}
		return &Result{
			Title:       parsed.Title,
			Link:        parsed.Link,
			Description: parsed.Description,
			FeedType:    parsed.FeedType,
			Items:       parsed.Items,
		}, nil
	}
}
