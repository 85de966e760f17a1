package discover

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedhaven/internal/fetch"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare domain", "example.com", "https://example.com"},
		{"whitespace and zero-width", " https://foo.com​ ", "https://foo.com"},
		{"uppercase scheme untouched", "HTTP://x.com", "HTTP://x.com"},
		{"https kept", "https://example.com/feed", "https://example.com/feed"},
		{"http kept", "http://example.com", "http://example.com"},
		{"empty", "", "https://"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeURL(tt.in))
		})
	}
}

// failingParser rejects every URL, forcing the HTML scan path.
func failingParser(ctx context.Context, url string) (*fetch.Result, error) {
	return nil, fmt.Errorf("no feed at %s", url)
}

func TestDiscover_LinkTags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head>
			<link type="application/rss+xml" href="/feed.xml" title="Blog">
		</head><body></body></html>`)
	}))
	defer srv.Close()

	d := New(failingParser, time.Second, "feedhaven-test")
	result, err := d.Discover(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	assert.False(t, result.DirectFeed)
	require.Len(t, result.Feeds, 1)
	assert.Equal(t, srv.URL+"/feed.xml", result.Feeds[0].URL)
	assert.Equal(t, "Blog", result.Feeds[0].Title)
	assert.Equal(t, "RSS", result.Feeds[0].Type)
}

func TestDiscover_AttributeOrderIrrelevant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head>
			<link href="/feed.xml" title="Blog" type="application/rss+xml">
		</head></html>`)
	}))
	defer srv.Close()

	d := New(failingParser, time.Second, "feedhaven-test")
	result, err := d.Discover(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, result.Feeds, 1)
	assert.Equal(t, srv.URL+"/feed.xml", result.Feeds[0].URL)
}

func TestDiscover_AtomTypeAndTitleDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head>
			<link type="application/atom+xml" href="/atom.xml">
			<link type="text/xml" href="/other.xml">
		</head></html>`)
	}))
	defer srv.Close()

	d := New(failingParser, time.Second, "feedhaven-test")
	result, err := d.Discover(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, result.Feeds, 2)
	assert.Equal(t, "Atom", result.Feeds[0].Type)
	assert.Equal(t, "RSS Feed", result.Feeds[0].Title)
	assert.Equal(t, "RSS", result.Feeds[1].Type)
}

func TestDiscover_DeduplicatesResolvedURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head>
			<link type="application/rss+xml" href="/feed.xml">
			<link type="application/rss+xml" href="%s/feed.xml">
		</head></html>`, "http://"+r.Host)
	}))
	defer srv.Close()

	d := New(failingParser, time.Second, "feedhaven-test")
	result, err := d.Discover(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, result.Feeds, 1)
}

func TestDiscover_NonSuccessStatusYieldsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	d := New(failingParser, time.Second, "feedhaven-test")
	result, err := d.Discover(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.False(t, result.DirectFeed)
	assert.Empty(t, result.Feeds)
}

func TestDiscover_DirectFeedShortCircuits(t *testing.T) {
	parse := func(ctx context.Context, url string) (*fetch.Result, error) {
		return &fetch.Result{Title: "My Feed", FeedType: "atom"}, nil
	}
	d := New(parse, time.Second, "feedhaven-test")
	result, err := d.Discover(context.Background(), "https://example.com/feed.xml")
	require.NoError(t, err)
	assert.True(t, result.DirectFeed)
	require.Len(t, result.Feeds, 1)
	assert.Equal(t, "My Feed", result.Feeds[0].Title)
	assert.Equal(t, "Atom", result.Feeds[0].Type)
}

func TestDiscover_PathProbeFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head></head><body>no links here</body></html>`)
	}))
	defer srv.Close()

	var probed []string
	parse := func(ctx context.Context, url string) (*fetch.Result, error) {
		probed = append(probed, url)
		if url == srv.URL+"/rss.xml" {
			return &fetch.Result{Title: "Probed Feed", FeedType: "rss"}, nil
		}
		return nil, fmt.Errorf("no feed at %s", url)
	}
	d := New(parse, time.Second, "feedhaven-test")
	result, err := d.Discover(context.Background(), srv.URL+"/some/page")
	require.NoError(t, err)
	require.Len(t, result.Feeds, 1)
	assert.Equal(t, srv.URL+"/rss.xml", result.Feeds[0].URL)
	assert.Equal(t, "Probed Feed", result.Feeds[0].Title)

	// Probing stops at the first hit: /rss.xml is fourth in the list after
	// the initial direct-parse attempt, and nothing after it is tried.
	require.NotEmpty(t, probed)
	assert.Equal(t, srv.URL+"/rss.xml", probed[len(probed)-1])
	assert.NotContains(t, probed, srv.URL+"/atom.xml")
}
