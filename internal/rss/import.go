package rss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"feedhaven/internal/database"
	"feedhaven/internal/model"
	"feedhaven/internal/opml"
	"feedhaven/internal/pool"
)

// ExportOPML renders the current subscriptions as an OPML document,
// grouped by category.
func (e *Engine) ExportOPML() ([]byte, error) {
	feeds, err := e.db.GetFeeds()
	if err != nil {
		return nil, fmt.Errorf("load feeds: %w", err)
	}
	cats, err := e.db.GetCategories()
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	return opml.Export("feedhaven subscriptions", feeds, cats)
}

// importOutcome is one feed reference's fate during an OPML import.
type importOutcome struct {
	imported bool
	skipped  bool
	errMsg   string
}

// ImportOPML subscribes to every feed referenced by the document, each one
// independently: already-subscribed URLs are skipped, parse failures are
// recorded and the rest of the document still processes. Import is never
// atomic.
func (e *Engine) ImportOPML(ctx context.Context, r io.Reader) (*model.ImportResult, error) {
	entries, err := opml.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSource, err)
	}

	// Category get-or-create is serialized so concurrent entries naming the
	// same new category cannot create duplicates.
	var catMu sync.Mutex

	outcomes := pool.Map(entries, e.concurrency, func(entry opml.Entry) importOutcome {
		return e.importOne(ctx, entry, &catMu)
	})

	result := &model.ImportResult{Total: len(entries)}
	for _, o := range outcomes {
		switch {
		case o.imported:
			result.Imported++
		case o.skipped:
			result.Skipped++
		default:
			result.Errors = append(result.Errors, o.errMsg)
		}
	}
	log.WithFields(log.Fields{
		"imported": result.Imported,
		"skipped":  result.Skipped,
		"failed":   len(result.Errors),
	}).Info("opml import complete")
	return result, nil
}

func (e *Engine) importOne(ctx context.Context, entry opml.Entry, catMu *sync.Mutex) importOutcome {
	if _, err := e.db.GetFeedByURL(entry.URL); err == nil {
		return importOutcome{skipped: true}
	} else if !errors.Is(err, database.ErrNotFound) {
		return importOutcome{errMsg: fmt.Sprintf("%s: %v", entry.URL, err)}
	}

	parsed, err := e.parse(ctx, entry.URL)
	if err != nil {
		return importOutcome{errMsg: fmt.Sprintf("%s: %v", entry.URL, err)}
	}

	var categoryID *int64
	if entry.Category != "" {
		id, err := e.getOrCreateCategory(entry.Category, catMu)
		if err != nil {
			return importOutcome{errMsg: fmt.Sprintf("%s: category %q: %v", entry.URL, entry.Category, err)}
		}
		categoryID = &id
	}

	title := entry.Title
	if title == "" {
		title = parsed.Title
	}
	if title == "" {
		title = entry.URL
	}
	feed := &model.Feed{
		URL:         entry.URL,
		SiteURL:     parsed.Link,
		Title:       title,
		Description: parsed.Description,
		Favicon:     e.lookupFavicon(parsed.Link, entry.URL),
		CategoryID:  categoryID,
		IsActive:    true,
	}
	id, err := e.db.CreateFeed(feed)
	if err != nil {
		return importOutcome{errMsg: fmt.Sprintf("%s: %v", entry.URL, err)}
	}

	e.storeItems(id, parsed.Items, MaxImportItems)
	if err := e.db.ResetFeedError(id, time.Now()); err != nil {
		log.WithError(err).WithField("feed", entry.URL).Error("updating last_fetched")
	}
	return importOutcome{imported: true}
}

// getOrCreateCategory resolves a category name case-insensitively,
// creating it when missing.
func (e *Engine) getOrCreateCategory(name string, mu *sync.Mutex) (int64, error) {
	mu.Lock()
	defer mu.Unlock()

	cat, err := e.db.GetCategoryByName(name)
	if err == nil {
		return cat.ID, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return 0, err
	}
	return e.db.CreateCategory(&model.Category{Name: name})
}
