// Package database provides storage backends for the aggregator.
package database

import (
	"errors"
	"time"

	"feedhaven/internal/model"
)

// ErrNotFound is returned when a lookup by id or URL matches nothing.
var ErrNotFound = errors.New("not found")

// ArticleQuery filters and pages an article listing.
type ArticleQuery struct {
	FeedID         *int64
	CategoryID     *int64
	UnreadOnly     bool
	BookmarkedOnly bool
	Limit          int
	Offset         int
}

// Store defines the interface for database operations.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// Category operations
	GetCategories() ([]model.Category, error)
	GetCategoryByID(id int64) (*model.Category, error)
	// GetCategoryByName matches case-insensitively.
	GetCategoryByName(name string) (*model.Category, error)
	CreateCategory(c *model.Category) (int64, error)
	UpdateCategory(c *model.Category) error
	// DeleteCategory clears category_id on the category's feeds, never deletes them.
	DeleteCategory(id int64) error

	// Feed operations
	GetFeeds() ([]model.Feed, error)
	GetActiveFeeds() ([]model.Feed, error)
	GetFeedByID(id int64) (*model.Feed, error)
	GetFeedByURL(url string) (*model.Feed, error)
	CreateFeed(f *model.Feed) (int64, error)
	UpdateFeed(f *model.Feed) error
	// DeleteFeed cascades to the feed's articles.
	DeleteFeed(id int64) error
	// IncrementFeedError bumps error_count by one without touching last_fetched.
	// Single-statement relative update so concurrent syncs cannot lose a count.
	IncrementFeedError(id int64) error
	// ResetFeedError zeroes error_count and records the successful fetch time.
	ResetFeedError(id int64, fetched time.Time) error

	// Article operations
	// AddArticle inserts unless (feed_id, guid) already exists.
	// Returns the row id and whether the article was new.
	AddArticle(a *model.Article) (int64, bool, error)
	GetArticleByID(id int64) (*model.Article, error)
	GetArticleByGUID(feedID int64, guid string) (*model.Article, error)
	ListArticles(q ArticleQuery) ([]model.Article, error)
	SetArticleRead(id int64, read bool) error
	SetArticleBookmarked(id int64, bookmarked bool) error
	Counts() (*model.Counts, error)
}
