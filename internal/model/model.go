// Package model defines shared data structures.
package model

import "time"

// Category groups feeds for the sidebar and OPML folders.
type Category struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Order int    `json:"order"`
}

// Feed represents an RSS/Atom feed subscription.
type Feed struct {
	ID          int64      `json:"id"`
	URL         string     `json:"url"`
	SiteURL     string     `json:"siteUrl"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Favicon     string     `json:"favicon"`
	CategoryID  *int64     `json:"categoryId"` // nullable, cleared when the category is deleted
	LastFetched *time.Time `json:"lastFetched"`
	ErrorCount  int        `json:"errorCount"` // consecutive failed syncs
	IsActive    bool       `json:"isActive"`
}

// Article represents a single item from a feed.
// (FeedID, GUID) is unique within the store.
type Article struct {
	ID           int64     `json:"id"`
	FeedID       int64     `json:"feedId"`
	GUID         string    `json:"guid"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Content      string    `json:"content"`
	Summary      string    `json:"summary"`
	Author       string    `json:"author"`
	ImageURL     string    `json:"imageUrl"`
	PublishedAt  time.Time `json:"publishedAt"`
	IsRead       bool      `json:"isRead"`
	IsBookmarked bool      `json:"isBookmarked"`
}

// DiscoveredFeed is a feed candidate located on a web page.
type DiscoveredFeed struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Type  string `json:"type"` // "RSS" or "Atom"
}

// HealthSummary aggregates per-feed failure counters.
type HealthSummary struct {
	TotalFeeds      int `json:"totalFeeds"`
	FailingFeeds    int `json:"failingFeeds"`
	FeedsWithErrors int `json:"feedsWithErrors"`
}

// FailingThreshold is the consecutive-error count at which a feed
// counts as failing in the health summary.
const FailingThreshold = 3

// ImportResult reports the outcome of an OPML import.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Total    int      `json:"total"`
	Errors   []string `json:"errors,omitempty"`
}

// Counts holds the unread/bookmark aggregates for the UI.
type Counts struct {
	Unread       int           `json:"unread"`
	Bookmarked   int           `json:"bookmarked"`
	UnreadByFeed map[int64]int `json:"unreadByFeed"`
}
