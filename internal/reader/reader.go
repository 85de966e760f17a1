// Package reader extracts readable article content from full web pages.
package reader

import (
	"fmt"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// DefaultTimeout bounds one extraction, fetch included.
const DefaultTimeout = 15 * time.Second

// View is the distilled, reader-mode form of a page.
type View struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Content     string `json:"content"`     // cleaned HTML
	TextContent string `json:"textContent"` // plain text
	Excerpt     string `json:"excerpt"`
	SiteName    string `json:"siteName"`
}

// Extractor distills pages via readability.
type Extractor struct {
	timeout time.Duration
}

// New creates an Extractor. A non-positive timeout uses the default.
func New(timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Extractor{timeout: timeout}
}

// Extract fetches pageURL and returns its reader-mode view.
func (e *Extractor) Extract(pageURL string) (*View, error) {
	article, err := readability.FromURL(pageURL, e.timeout)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", pageURL, err)
	}
	return &View{
		URL:         pageURL,
		Title:       article.Title,
		Content:     article.Content,
		TextContent: article.TextContent,
		Excerpt:     article.Excerpt,
		SiteName:    article.SiteName,
	}, nil
}
