package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedhaven/internal/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func mustCreateFeed(t *testing.T, db *DB, url string) *model.Feed {
	t.Helper()
	f := &model.Feed{URL: url, Title: "Feed " + url, IsActive: true}
	id, err := db.CreateFeed(f)
	require.NoError(t, err)
	f.ID = id
	return f
}

func TestCreateAndGetFeed(t *testing.T) {
	db := newTestDB(t)
	f := mustCreateFeed(t, db, "https://example.com/rss")

	got, err := db.GetFeedByID(f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.URL, got.URL)
	assert.True(t, got.IsActive)
	assert.Zero(t, got.ErrorCount)
	assert.Nil(t, got.LastFetched)
	assert.Nil(t, got.CategoryID)
}

func TestGetFeedByURL_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetFeedByURL("https://nowhere.example")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFeedURLUnique(t *testing.T) {
	db := newTestDB(t)
	mustCreateFeed(t, db, "https://example.com/rss")
	_, err := db.CreateFeed(&model.Feed{URL: "https://example.com/rss", Title: "dup"})
	assert.Error(t, err)
}

func TestGetActiveFeeds(t *testing.T) {
	db := newTestDB(t)
	mustCreateFeed(t, db, "https://a.example/rss")
	inactive := &model.Feed{URL: "https://b.example/rss", Title: "b", IsActive: false}
	_, err := db.CreateFeed(inactive)
	require.NoError(t, err)

	active, err := db.GetActiveFeeds()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "https://a.example/rss", active[0].URL)

	all, err := db.GetFeeds()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestIncrementAndResetFeedError(t *testing.T) {
	db := newTestDB(t)
	f := mustCreateFeed(t, db, "https://example.com/rss")

	require.NoError(t, db.IncrementFeedError(f.ID))
	require.NoError(t, db.IncrementFeedError(f.ID))

	got, err := db.GetFeedByID(f.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ErrorCount)
	assert.Nil(t, got.LastFetched, "failures must not touch last_fetched")

	now := time.Now()
	require.NoError(t, db.ResetFeedError(f.ID, now))
	got, err = db.GetFeedByID(f.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ErrorCount)
	require.NotNil(t, got.LastFetched)
	assert.WithinDuration(t, now, *got.LastFetched, time.Second)
}

func TestAddArticle_DedupByFeedAndGUID(t *testing.T) {
	db := newTestDB(t)
	f1 := mustCreateFeed(t, db, "https://a.example/rss")
	f2 := mustCreateFeed(t, db, "https://b.example/rss")

	a := &model.Article{FeedID: f1.ID, GUID: "abc", Title: "one", PublishedAt: time.Now()}
	_, isNew, err := db.AddArticle(a)
	require.NoError(t, err)
	assert.True(t, isNew)

	// Same guid in the same feed is a no-op.
	_, isNew, err = db.AddArticle(a)
	require.NoError(t, err)
	assert.False(t, isNew)

	// Same guid in another feed is a distinct article.
	b := &model.Article{FeedID: f2.ID, GUID: "abc", Title: "two", PublishedAt: time.Now()}
	_, isNew, err = db.AddArticle(b)
	require.NoError(t, err)
	assert.True(t, isNew)
}

func TestGetArticleByGUID(t *testing.T) {
	db := newTestDB(t)
	f := mustCreateFeed(t, db, "https://a.example/rss")
	_, _, err := db.AddArticle(&model.Article{FeedID: f.ID, GUID: "g1", Title: "t", PublishedAt: time.Now()})
	require.NoError(t, err)

	got, err := db.GetArticleByGUID(f.ID, "g1")
	require.NoError(t, err)
	assert.Equal(t, "t", got.Title)

	_, err = db.GetArticleByGUID(f.ID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteFeed_CascadesArticles(t *testing.T) {
	db := newTestDB(t)
	f := mustCreateFeed(t, db, "https://a.example/rss")
	_, _, err := db.AddArticle(&model.Article{FeedID: f.ID, GUID: "g1", Title: "t", PublishedAt: time.Now()})
	require.NoError(t, err)

	require.NoError(t, db.DeleteFeed(f.ID))

	_, err = db.GetFeedByID(f.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	articles, err := db.ListArticles(ArticleQuery{FeedID: &f.ID})
	require.NoError(t, err)
	assert.Empty(t, articles)
}

func TestDeleteCategory_ClearsFeedsButKeepsThem(t *testing.T) {
	db := newTestDB(t)
	catID, err := db.CreateCategory(&model.Category{Name: "Tech"})
	require.NoError(t, err)

	f := &model.Feed{URL: "https://a.example/rss", Title: "a", CategoryID: &catID, IsActive: true}
	fid, err := db.CreateFeed(f)
	require.NoError(t, err)

	require.NoError(t, db.DeleteCategory(catID))

	got, err := db.GetFeedByID(fid)
	require.NoError(t, err)
	assert.Nil(t, got.CategoryID)
	_, err = db.GetCategoryByID(catID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetCategoryByName_CaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	_, err := db.CreateCategory(&model.Category{Name: "Tech News"})
	require.NoError(t, err)

	got, err := db.GetCategoryByName("tech news")
	require.NoError(t, err)
	assert.Equal(t, "Tech News", got.Name)

	got, err = db.GetCategoryByName("TECH NEWS")
	require.NoError(t, err)
	assert.Equal(t, "Tech News", got.Name)
}

func TestListArticles_Filters(t *testing.T) {
	db := newTestDB(t)
	catID, err := db.CreateCategory(&model.Category{Name: "Tech"})
	require.NoError(t, err)
	f1 := &model.Feed{URL: "https://a.example/rss", Title: "a", CategoryID: &catID, IsActive: true}
	f1ID, err := db.CreateFeed(f1)
	require.NoError(t, err)
	f2 := mustCreateFeed(t, db, "https://b.example/rss")

	now := time.Now()
	_, _, err = db.AddArticle(&model.Article{FeedID: f1ID, GUID: "1", Title: "a1", PublishedAt: now})
	require.NoError(t, err)
	_, _, err = db.AddArticle(&model.Article{FeedID: f2.ID, GUID: "2", Title: "b1", PublishedAt: now.Add(time.Minute)})
	require.NoError(t, err)

	byFeed, err := db.ListArticles(ArticleQuery{FeedID: &f2.ID})
	require.NoError(t, err)
	require.Len(t, byFeed, 1)
	assert.Equal(t, "b1", byFeed[0].Title)

	byCategory, err := db.ListArticles(ArticleQuery{CategoryID: &catID})
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "a1", byCategory[0].Title)

	require.NoError(t, db.SetArticleRead(byFeed[0].ID, true))
	unread, err := db.ListArticles(ArticleQuery{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "a1", unread[0].Title)

	// Newest first.
	all, err := db.ListArticles(ArticleQuery{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b1", all[0].Title)

	limited, err := db.ListArticles(ArticleQuery{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "a1", limited[0].Title)
}

func TestCounts(t *testing.T) {
	db := newTestDB(t)
	f := mustCreateFeed(t, db, "https://a.example/rss")
	id1, _, err := db.AddArticle(&model.Article{FeedID: f.ID, GUID: "1", Title: "a", PublishedAt: time.Now()})
	require.NoError(t, err)
	_, _, err = db.AddArticle(&model.Article{FeedID: f.ID, GUID: "2", Title: "b", PublishedAt: time.Now()})
	require.NoError(t, err)

	require.NoError(t, db.SetArticleRead(id1, true))
	require.NoError(t, db.SetArticleBookmarked(id1, true))

	counts, err := db.Counts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Unread)
	assert.Equal(t, 1, counts.Bookmarked)
	assert.Equal(t, 1, counts.UnreadByFeed[f.ID])
}

func TestSetArticleRead_NotFound(t *testing.T) {
	db := newTestDB(t)
	assert.ErrorIs(t, db.SetArticleRead(999, true), ErrNotFound)
}
