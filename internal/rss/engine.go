// Package rss implements the feed synchronization engine.
package rss

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"feedhaven/internal/database"
	"feedhaven/internal/discover"
	"feedhaven/internal/favicon"
	"feedhaven/internal/fetch"
	"feedhaven/internal/model"
	"feedhaven/internal/pool"
)

// Error taxonomy surfaced to single-item callers. Batch operations record
// failures as data instead of propagating them.
var (
	// ErrInvalidSource marks a URL that could not be parsed as a feed.
	ErrInvalidSource = errors.New("not a valid feed")
	// ErrConflict marks an attempt to subscribe to an already-known URL.
	ErrConflict = errors.New("feed already exists")
)

const (
	// MaxSyncItems caps how many items a live sync takes per feed.
	MaxSyncItems = 50
	// MaxImportItems caps the initial backfill during OPML import.
	MaxImportItems = 20
	// DefaultConcurrency is the bulk refresh/import admission limit.
	DefaultConcurrency = 5
)

// Engine brings feeds up to date from their live sources.
type Engine struct {
	db          database.Store
	parse       fetch.ParseFunc
	favicon     favicon.LookupFunc
	concurrency int
}

// NewEngine creates an engine. favicon may be nil to skip icon resolution.
func NewEngine(db database.Store, parse fetch.ParseFunc, fav favicon.LookupFunc, concurrency int) *Engine {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Engine{db: db, parse: parse, favicon: fav, concurrency: concurrency}
}

// SyncResult reports one feed's sync outcome. Err carries parse failures;
// the feed's error counter has already been updated by the time callers
// see it.
type SyncResult struct {
	FeedID      int64
	NewArticles int
	Err         error
}

// Sync fetches one feed and stores its unseen items. A successful parse
// resets the feed's error counter and bumps last_fetched even when no new
// articles were created; a failed parse increments the counter and leaves
// last_fetched alone.
func (e *Engine) Sync(ctx context.Context, feed model.Feed) SyncResult {
	parsed, err := e.parse(ctx, feed.URL)
	if err != nil {
		if dbErr := e.db.IncrementFeedError(feed.ID); dbErr != nil {
			log.WithError(dbErr).WithField("feed", feed.URL).Error("recording feed error")
		}
		return SyncResult{FeedID: feed.ID, Err: err}
	}

	newCount := e.storeItems(feed.ID, parsed.Items, MaxSyncItems)
	if err := e.db.ResetFeedError(feed.ID, time.Now()); err != nil {
		log.WithError(err).WithField("feed", feed.URL).Error("updating last_fetched")
	}
	return SyncResult{FeedID: feed.ID, NewArticles: newCount}
}

// storeItems inserts up to max items for the feed, in source order, and
// returns how many were new. Per-item storage errors are logged and
// skipped so the rest of the feed still lands.
func (e *Engine) storeItems(feedID int64, items []*gofeed.Item, max int) int {
	if len(items) > max {
		items = items[:max]
	}
	now := time.Now()
	newCount := 0
	for _, item := range items {
		article := articleFromItem(feedID, item, now)
		_, isNew, err := e.db.AddArticle(article)
		if err != nil {
			log.WithError(err).WithField("guid", article.GUID).Error("adding article")
			continue
		}
		if isNew {
			newCount++
		}
	}
	return newCount
}

// AddFeed subscribes to a feed, performing its first sync. The feed record
// is only created after the initial parse succeeds.
func (e *Engine) AddFeed(ctx context.Context, rawURL string, categoryID *int64) (*model.Feed, error) {
	feedURL := discover.NormalizeURL(rawURL)

	if _, err := e.db.GetFeedByURL(feedURL); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrConflict, feedURL)
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	parsed, err := e.parse(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSource, err)
	}

	title := parsed.Title
	if title == "" {
		title = feedURL
	}
	feed := &model.Feed{
		URL:         feedURL,
		SiteURL:     parsed.Link,
		Title:       title,
		Description: parsed.Description,
		Favicon:     e.lookupFavicon(parsed.Link, feedURL),
		CategoryID:  categoryID,
		IsActive:    true,
	}
	id, err := e.db.CreateFeed(feed)
	if err != nil {
		return nil, fmt.Errorf("create feed: %w", err)
	}
	feed.ID = id

	e.storeItems(id, parsed.Items, MaxSyncItems)

	now := time.Now()
	if err := e.db.ResetFeedError(id, now); err != nil {
		log.WithError(err).WithField("feed", feedURL).Error("updating last_fetched")
	}
	feed.LastFetched = &now

	log.WithFields(log.Fields{"feed": feedURL, "items": len(parsed.Items)}).Info("feed added")
	return feed, nil
}

// lookupFavicon resolves an icon for the feed's site, best-effort.
func (e *Engine) lookupFavicon(siteURL, feedURL string) string {
	if e.favicon == nil {
		return ""
	}
	if siteURL == "" {
		siteURL = feedURL
	}
	return e.favicon(siteURL)
}

// RefreshAll syncs every active feed through the bounded executor and
// returns the total count of newly created articles. Individual failures
// land in each feed's error counter and never abort the batch.
func (e *Engine) RefreshAll(ctx context.Context) (int, error) {
	feeds, err := e.db.GetActiveFeeds()
	if err != nil {
		return 0, fmt.Errorf("load active feeds: %w", err)
	}

	start := time.Now()
	results := pool.Map(feeds, e.concurrency, func(f model.Feed) SyncResult {
		return e.Sync(ctx, f)
	})

	total := 0
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			log.WithError(r.Err).WithField("feedId", r.FeedID).Warn("feed sync failed")
			continue
		}
		total += r.NewArticles
	}
	log.WithFields(log.Fields{
		"feeds":       len(feeds),
		"failed":      failed,
		"newArticles": total,
		"took":        time.Since(start).Round(time.Millisecond),
	}).Info("refresh complete")
	return total, nil
}

// Health aggregates per-feed failure counters into a summary. A feed is
// failing once its consecutive-error count reaches the threshold; one
// successful sync clears it.
func (e *Engine) Health() (*model.HealthSummary, error) {
	feeds, err := e.db.GetFeeds()
	if err != nil {
		return nil, err
	}
	return &model.HealthSummary{
		TotalFeeds: len(feeds),
		FailingFeeds: lo.CountBy(feeds, func(f model.Feed) bool {
			return f.ErrorCount >= model.FailingThreshold
		}),
		FeedsWithErrors: lo.CountBy(feeds, func(f model.Feed) bool {
			return f.ErrorCount > 0
		}),
	}, nil
}
