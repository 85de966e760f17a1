package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"feedhaven/internal/model"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

// Ensure DB implements Store interface.
var _ Store = (*DB)(nil)

// New opens or creates an SQLite database at the given path.
// Use ":memory:" for an in-memory database (useful for testing).
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Enable WAL mode for better concurrency.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	return "SQLite"
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		color TEXT DEFAULT '',
		sort_order INTEGER DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS feeds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL UNIQUE,
		site_url TEXT DEFAULT '',
		title TEXT NOT NULL,
		description TEXT DEFAULT '',
		favicon TEXT DEFAULT '',
		category_id INTEGER REFERENCES categories(id),
		last_fetched DATETIME,
		error_count INTEGER DEFAULT 0,
		is_active INTEGER DEFAULT 1
	);
	CREATE TABLE IF NOT EXISTS articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		feed_id INTEGER NOT NULL REFERENCES feeds(id),
		guid TEXT NOT NULL,
		title TEXT NOT NULL,
		url TEXT DEFAULT '',
		content TEXT DEFAULT '',
		summary TEXT DEFAULT '',
		author TEXT DEFAULT '',
		image_url TEXT DEFAULT '',
		published_at DATETIME,
		is_read INTEGER DEFAULT 0,
		is_bookmarked INTEGER DEFAULT 0,
		UNIQUE(feed_id, guid)
	);
	CREATE INDEX IF NOT EXISTS idx_articles_feed_id ON articles(feed_id);
	CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at DESC);
	CREATE INDEX IF NOT EXISTS idx_articles_is_read ON articles(is_read);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// --- Category Methods ---

// GetCategories returns all categories ordered by sort order, then name.
func (db *DB) GetCategories() ([]model.Category, error) {
	rows, err := db.conn.Query("SELECT id, name, color, sort_order FROM categories ORDER BY sort_order, name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cats []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &c.Order); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (db *DB) GetCategoryByID(id int64) (*model.Category, error) {
	var c model.Category
	err := db.conn.QueryRow("SELECT id, name, color, sort_order FROM categories WHERE id = ?", id).
		Scan(&c.ID, &c.Name, &c.Color, &c.Order)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCategoryByName finds a category by name, case-insensitively.
func (db *DB) GetCategoryByName(name string) (*model.Category, error) {
	var c model.Category
	err := db.conn.QueryRow("SELECT id, name, color, sort_order FROM categories WHERE LOWER(name) = LOWER(?)", name).
		Scan(&c.ID, &c.Name, &c.Color, &c.Order)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *DB) CreateCategory(c *model.Category) (int64, error) {
	res, err := db.conn.Exec("INSERT INTO categories (name, color, sort_order) VALUES (?, ?, ?)", c.Name, c.Color, c.Order)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (db *DB) UpdateCategory(c *model.Category) error {
	res, err := db.conn.Exec("UPDATE categories SET name = ?, color = ?, sort_order = ? WHERE id = ?",
		c.Name, c.Color, c.Order, c.ID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// DeleteCategory removes a category, detaching its feeds first.
func (db *DB) DeleteCategory(id int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("UPDATE feeds SET category_id = NULL WHERE category_id = ?", id); err != nil {
		tx.Rollback()
		return err
	}
	res, err := tx.Exec("DELETE FROM categories WHERE id = ?", id)
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := checkAffected(res); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// --- Feed Methods ---

const feedColumns = "id, url, site_url, title, description, favicon, category_id, last_fetched, error_count, is_active"

// GetFeeds returns all feeds ordered by title.
func (db *DB) GetFeeds() ([]model.Feed, error) {
	rows, err := db.conn.Query("SELECT " + feedColumns + " FROM feeds ORDER BY title")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFeeds(rows)
}

// GetActiveFeeds returns the feeds eligible for scheduled/bulk refresh.
func (db *DB) GetActiveFeeds() ([]model.Feed, error) {
	rows, err := db.conn.Query("SELECT " + feedColumns + " FROM feeds WHERE is_active = 1 ORDER BY title")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFeeds(rows)
}

func scanFeeds(rows *sql.Rows) ([]model.Feed, error) {
	var feeds []model.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, *f)
	}
	return feeds, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(row rowScanner) (*model.Feed, error) {
	var f model.Feed
	var categoryID sql.NullInt64
	var lastFetched sql.NullTime
	if err := row.Scan(&f.ID, &f.URL, &f.SiteURL, &f.Title, &f.Description, &f.Favicon,
		&categoryID, &lastFetched, &f.ErrorCount, &f.IsActive); err != nil {
		return nil, err
	}
	if categoryID.Valid {
		f.CategoryID = &categoryID.Int64
	}
	if lastFetched.Valid {
		t := lastFetched.Time
		f.LastFetched = &t
	}
	return &f, nil
}

func (db *DB) GetFeedByID(id int64) (*model.Feed, error) {
	f, err := scanFeed(db.conn.QueryRow("SELECT "+feedColumns+" FROM feeds WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return f, err
}

func (db *DB) GetFeedByURL(url string) (*model.Feed, error) {
	f, err := scanFeed(db.conn.QueryRow("SELECT "+feedColumns+" FROM feeds WHERE url = ?", url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return f, err
}

// CreateFeed adds a new feed. Returns the ID.
func (db *DB) CreateFeed(f *model.Feed) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO feeds (url, site_url, title, description, favicon, category_id, last_fetched, error_count, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.URL, f.SiteURL, f.Title, f.Description, f.Favicon, f.CategoryID, f.LastFetched, f.ErrorCount, f.IsActive)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (db *DB) UpdateFeed(f *model.Feed) error {
	res, err := db.conn.Exec(`
		UPDATE feeds SET url = ?, site_url = ?, title = ?, description = ?, favicon = ?,
			category_id = ?, is_active = ? WHERE id = ?`,
		f.URL, f.SiteURL, f.Title, f.Description, f.Favicon, f.CategoryID, f.IsActive, f.ID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// DeleteFeed removes a feed and all of its articles.
func (db *DB) DeleteFeed(id int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM articles WHERE feed_id = ?", id); err != nil {
		tx.Rollback()
		return err
	}
	res, err := tx.Exec("DELETE FROM feeds WHERE id = ?", id)
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := checkAffected(res); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// IncrementFeedError bumps the consecutive-failure counter in place.
func (db *DB) IncrementFeedError(id int64) error {
	_, err := db.conn.Exec("UPDATE feeds SET error_count = error_count + 1 WHERE id = ?", id)
	return err
}

// ResetFeedError clears the counter and records the fetch time.
func (db *DB) ResetFeedError(id int64, fetched time.Time) error {
	_, err := db.conn.Exec("UPDATE feeds SET error_count = 0, last_fetched = ? WHERE id = ?", fetched, id)
	return err
}

// --- Article Methods ---

const articleColumns = "id, feed_id, guid, title, url, content, summary, author, image_url, published_at, is_read, is_bookmarked"

// AddArticle inserts a new article if the GUID doesn't exist for that feed.
// Returns the ID and whether it was new.
func (db *DB) AddArticle(a *model.Article) (int64, bool, error) {
	res, err := db.conn.Exec(`
		INSERT INTO articles (feed_id, guid, title, url, content, summary, author, image_url, published_at, is_read, is_bookmarked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(feed_id, guid) DO NOTHING`,
		a.FeedID, a.GUID, a.Title, a.URL, a.Content, a.Summary, a.Author, a.ImageURL, a.PublishedAt, a.IsRead, a.IsBookmarked)
	if err != nil {
		return 0, false, err
	}
	id, _ := res.LastInsertId()
	affected, _ := res.RowsAffected()
	return id, affected > 0, nil
}

func scanArticle(row rowScanner) (*model.Article, error) {
	var a model.Article
	var publishedAt sql.NullTime
	if err := row.Scan(&a.ID, &a.FeedID, &a.GUID, &a.Title, &a.URL, &a.Content, &a.Summary,
		&a.Author, &a.ImageURL, &publishedAt, &a.IsRead, &a.IsBookmarked); err != nil {
		return nil, err
	}
	if publishedAt.Valid {
		a.PublishedAt = publishedAt.Time
	}
	return &a, nil
}

func (db *DB) GetArticleByID(id int64) (*model.Article, error) {
	a, err := scanArticle(db.conn.QueryRow("SELECT "+articleColumns+" FROM articles WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (db *DB) GetArticleByGUID(feedID int64, guid string) (*model.Article, error) {
	a, err := scanArticle(db.conn.QueryRow("SELECT "+articleColumns+" FROM articles WHERE feed_id = ? AND guid = ?", feedID, guid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListArticles returns articles matching the query, newest first.
func (db *DB) ListArticles(q ArticleQuery) ([]model.Article, error) {
	var where []string
	var args []any
	if q.FeedID != nil {
		where = append(where, "a.feed_id = ?")
		args = append(args, *q.FeedID)
	}
	if q.CategoryID != nil {
		where = append(where, "a.feed_id IN (SELECT id FROM feeds WHERE category_id = ?)")
		args = append(args, *q.CategoryID)
	}
	if q.UnreadOnly {
		where = append(where, "a.is_read = 0")
	}
	if q.BookmarkedOnly {
		where = append(where, "a.is_bookmarked = 1")
	}
	query := "SELECT " + prefixColumns("a.") + " FROM articles a"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.published_at DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
		if q.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, q.Offset)
		}
	}
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var articles []model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

func prefixColumns(prefix string) string {
	cols := strings.Split(articleColumns, ", ")
	for i, c := range cols {
		cols[i] = prefix + c
	}
	return strings.Join(cols, ", ")
}

func (db *DB) SetArticleRead(id int64, read bool) error {
	res, err := db.conn.Exec("UPDATE articles SET is_read = ? WHERE id = ?", read, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (db *DB) SetArticleBookmarked(id int64, bookmarked bool) error {
	res, err := db.conn.Exec("UPDATE articles SET is_bookmarked = ? WHERE id = ?", bookmarked, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// Counts returns unread/bookmarked totals and per-feed unread counts.
func (db *DB) Counts() (*model.Counts, error) {
	counts := &model.Counts{UnreadByFeed: make(map[int64]int)}
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM articles WHERE is_read = 0").Scan(&counts.Unread); err != nil {
		return nil, err
	}
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM articles WHERE is_bookmarked = 1").Scan(&counts.Bookmarked); err != nil {
		return nil, err
	}
	rows, err := db.conn.Query("SELECT feed_id, COUNT(*) FROM articles WHERE is_read = 0 GROUP BY feed_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var feedID int64
		var n int
		if err := rows.Scan(&feedID, &n); err != nil {
			return nil, err
		}
		counts.UnreadByFeed[feedID] = n
	}
	return counts, rows.Err()
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
