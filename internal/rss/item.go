package rss

import (
	"strings"
	"time"
	"unicode"

	"github.com/mmcdole/gofeed"

	"feedhaven/internal/model"
)

// summaryMaxLen is where derived summaries get truncated.
const summaryMaxLen = 200

// articleFromItem maps a parsed item into an Article with the documented
// defaults applied.
func articleFromItem(feedID int64, item *gofeed.Item, now time.Time) *model.Article {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = "Untitled"
	}

	// Prefer full content over the summary field when both are present.
	content := item.Content
	if content == "" {
		content = item.Description
	}
	summaryText := item.Description
	if summaryText == "" {
		summaryText = item.Content
	}

	publishedAt := now
	if item.PublishedParsed != nil {
		publishedAt = *item.PublishedParsed
	}

	return &model.Article{
		FeedID:      feedID,
		GUID:        itemGUID(item),
		Title:       title,
		URL:         item.Link,
		Content:     content,
		Summary:     Summarize(summaryText),
		Author:      itemAuthor(item),
		ImageURL:    itemImage(item),
		PublishedAt: publishedAt,
	}
}

// itemGUID computes a stable per-feed identifier with the fallback chain
// id -> link -> title -> "". Never empty-by-accident: the empty string is
// the final, deliberate fallback.
func itemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	if item.Link != "" {
		return item.Link
	}
	return item.Title
}

func itemAuthor(item *gofeed.Item) string {
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		return item.Authors[0].Name
	}
	if item.Author != nil {
		return item.Author.Name
	}
	return ""
}

func itemImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			return enc.URL
		}
	}
	return ""
}

// Summarize strips markup from text and truncates the remaining plain text
// to summaryMaxLen characters, cutting at the last whitespace boundary
// when one exists and appending an ellipsis.
func Summarize(text string) string {
	plain := strings.TrimSpace(stripTags(text))
	runes := []rune(plain)
	if len(runes) <= summaryMaxLen {
		return plain
	}
	cut := string(runes[:summaryMaxLen])
	if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}

// stripTags drops everything between angle brackets.
func stripTags(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
