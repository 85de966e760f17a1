package rss

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedhaven/internal/database"
	"feedhaven/internal/fetch"
	"feedhaven/internal/model"
)

const testOPML = `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>subscriptions</title></head>
  <body>
    <outline text="Tech">
      <outline type="rss" text="Feed A" title="Feed A" xmlUrl="https://a.example/rss" htmlUrl="https://a.example"/>
      <outline type="rss" text="Feed B" title="Feed B" xmlUrl="https://b.example/rss"/>
    </outline>
  </body>
</opml>`

func TestImportOPML_CreatesFeedsAndCategory(t *testing.T) {
	engine, db := newTestEngine(t, map[string]*fetch.Result{
		"https://a.example/rss": {Title: "A", Items: testItems(2)},
		"https://b.example/rss": {Title: "B", Items: testItems(1)},
	})

	result, err := engine.ImportOPML(context.Background(), strings.NewReader(testOPML))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Zero(t, result.Skipped)
	assert.Equal(t, 2, result.Total)
	assert.Empty(t, result.Errors)

	cat, err := db.GetCategoryByName("tech")
	require.NoError(t, err, "category is created from the folder name")

	feeds, err := db.GetFeeds()
	require.NoError(t, err)
	require.Len(t, feeds, 2)
	for _, f := range feeds {
		require.NotNil(t, f.CategoryID)
		assert.Equal(t, cat.ID, *f.CategoryID)
	}
}

func TestImportOPML_SkipsExistingURLs(t *testing.T) {
	engine, _ := newTestEngine(t, map[string]*fetch.Result{
		"https://a.example/rss": {Title: "A"},
		"https://b.example/rss": {Title: "B"},
	})

	_, err := engine.ImportOPML(context.Background(), strings.NewReader(testOPML))
	require.NoError(t, err)

	result, err := engine.ImportOPML(context.Background(), strings.NewReader(testOPML))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Imported)
	assert.Equal(t, 2, result.Skipped)
}

func TestImportOPML_ReusesCategoryCaseInsensitively(t *testing.T) {
	engine, db := newTestEngine(t, map[string]*fetch.Result{
		"https://a.example/rss": {Title: "A"},
		"https://b.example/rss": {Title: "B"},
	})
	_, err := db.CreateCategory(&model.Category{Name: "TECH"})
	require.NoError(t, err)

	_, err = engine.ImportOPML(context.Background(), strings.NewReader(testOPML))
	require.NoError(t, err)

	cats, err := db.GetCategories()
	require.NoError(t, err)
	assert.Len(t, cats, 1, "existing category is matched, not duplicated")
	assert.Equal(t, "TECH", cats[0].Name)
}

func TestImportOPML_PerFeedFailuresDoNotStopTheBatch(t *testing.T) {
	engine, db := newTestEngine(t, map[string]*fetch.Result{
		"https://b.example/rss": {Title: "B", Items: testItems(1)},
	})

	result, err := engine.ImportOPML(context.Background(), strings.NewReader(testOPML))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "https://a.example/rss")

	feeds, err := db.GetFeeds()
	require.NoError(t, err)
	assert.Len(t, feeds, 1)
}

func TestImportOPML_CapsBackfillAtTwenty(t *testing.T) {
	engine, db := newTestEngine(t, map[string]*fetch.Result{
		"https://a.example/rss": {Title: "A", Items: testItems(40)},
	})
	doc := `<opml version="2.0"><body>
		<outline type="rss" text="A" xmlUrl="https://a.example/rss"/>
	</body></opml>`

	_, err := engine.ImportOPML(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)

	feed, err := db.GetFeedByURL("https://a.example/rss")
	require.NoError(t, err)
	articles, err := db.ListArticles(database.ArticleQuery{FeedID: &feed.ID})
	require.NoError(t, err)
	assert.Len(t, articles, MaxImportItems)
}

func TestExportThenImport_RoundTrips(t *testing.T) {
	parsers := map[string]*fetch.Result{
		"https://a.example/rss": {Title: "Feed A", Link: "https://a.example"},
		"https://b.example/rss": {Title: "Feed B", Link: "https://b.example"},
	}
	source, sourceDB := newTestEngine(t, parsers)

	catID, err := sourceDB.CreateCategory(&model.Category{Name: "News"})
	require.NoError(t, err)
	_, err = source.AddFeed(context.Background(), "https://a.example/rss", &catID)
	require.NoError(t, err)
	_, err = source.AddFeed(context.Background(), "https://b.example/rss", &catID)
	require.NoError(t, err)

	doc, err := source.ExportOPML()
	require.NoError(t, err)

	target, targetDB := newTestEngine(t, parsers)
	result, err := target.ImportOPML(context.Background(), bytes.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)

	feeds, err := targetDB.GetFeeds()
	require.NoError(t, err)
	require.Len(t, feeds, 2)
	cat, err := targetDB.GetCategoryByName("News")
	require.NoError(t, err)
	for _, f := range feeds {
		require.NotNil(t, f.CategoryID)
		assert.Equal(t, cat.ID, *f.CategoryID)
	}
	assert.Equal(t, "Feed A", feeds[0].Title)
	assert.Equal(t, "Feed B", feeds[1].Title)

	// Importing the same document again only skips.
	again, err := target.ImportOPML(context.Background(), bytes.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 0, again.Imported)
	assert.Equal(t, 2, again.Skipped)
}
