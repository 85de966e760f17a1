// Package discover locates machine-readable feeds starting from an
// arbitrary user-supplied URL.
package discover

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"

	"feedhaven/internal/fetch"
	"feedhaven/internal/model"
)

// zero-width characters that paste in with copied URLs
const zeroWidthChars = "​‌‍\uFEFF"

// NormalizeURL canonicalizes a user-entered source string into a fetchable
// URL. It never fails; garbage input is passed through and rejected later
// at parse time.
func NormalizeURL(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(zeroWidthChars, r) {
			return -1
		}
		return r
	}, s)
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		s = "https://" + s
	}
	return s
}

// feedLinkTypes are the MIME types a <link> element may declare for a feed.
var feedLinkTypes = map[string]bool{
	"application/rss+xml":  true,
	"application/atom+xml": true,
	"text/xml":             true,
}

// commonFeedPaths are probed in order when a page declares no feed links.
var commonFeedPaths = []string{
	"/feed",
	"/feed/",
	"/rss",
	"/rss.xml",
	"/atom.xml",
	"/feed.xml",
	"/index.xml",
	"/blog/feed",
	"/blog/rss",
}

// Discoverer finds feed candidates on a web page, first by scanning
// declared <link> elements and then by probing conventional paths.
type Discoverer struct {
	parse     fetch.ParseFunc
	client    *http.Client
	userAgent string
}

// New creates a Discoverer. The parse function is used both for the
// direct-feed check and for path probing.
func New(parse fetch.ParseFunc, timeout time.Duration, userAgent string) *Discoverer {
	if timeout <= 0 {
		timeout = fetch.DefaultTimeout
	}
	return &Discoverer{
		parse:     parse,
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Result is what the control surface returns for a discovery request.
type Result struct {
	DirectFeed bool                   `json:"directFeed"`
	Feeds      []model.DiscoveredFeed `json:"feeds"`
}

// Discover resolves pageURL into feed candidates. If the URL itself parses
// as a feed it short-circuits with a single direct-feed candidate.
func (d *Discoverer) Discover(ctx context.Context, pageURL string) (*Result, error) {
	if parsed, err := d.parse(ctx, pageURL); err == nil {
		return &Result{
			DirectFeed: true,
			Feeds:      []model.DiscoveredFeed{feedCandidate(pageURL, parsed)},
		}, nil
	}

	feeds, err := d.scanPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if len(feeds) == 0 {
		feeds = d.probePaths(ctx, pageURL)
	}
	return &Result{Feeds: feeds}, nil
}

// scanPage fetches pageURL as HTML and collects declared feed links.
// A non-success status yields zero candidates, not an error.
func (d *Discoverer) scanPage(ctx context.Context, pageURL string) ([]model.DiscoveredFeed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, nil
	}
	req.Header.Set("User-Agent", d.userAgent)
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil
	}

	var feeds []model.DiscoveredFeed
	seen := make(map[string]bool)
	doc.Find("link").Each(func(_ int, sel *goquery.Selection) {
		linkType, _ := sel.Attr("type")
		linkType = strings.ToLower(strings.TrimSpace(linkType))
		if !feedLinkTypes[linkType] {
			return
		}
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref).String()
		if seen[resolved] {
			return
		}
		seen[resolved] = true

		title := sel.AttrOr("title", "")
		if title == "" {
			title = "RSS Feed"
		}
		feedType := "RSS"
		if strings.Contains(linkType, "atom") {
			feedType = "Atom"
		}
		feeds = append(feeds, model.DiscoveredFeed{URL: resolved, Title: title, Type: feedType})
	})
	return feeds, nil
}

// probePaths tries the conventional feed paths against the site root and
// accepts the first one that parses. Probe failures are discovery noise.
func (d *Discoverer) probePaths(ctx context.Context, pageURL string) []model.DiscoveredFeed {
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return nil
	}
	root := base.Scheme + "://" + base.Host
	for _, path := range commonFeedPaths {
		candidate := root + path
		parsed, err := d.parse(ctx, candidate)
		if err != nil {
			continue
		}
		log.WithFields(log.Fields{"url": candidate}).Debug("feed found by path probe")
		return []model.DiscoveredFeed{feedCandidate(candidate, parsed)}
	}
	return nil
}

func feedCandidate(feedURL string, parsed *fetch.Result) model.DiscoveredFeed {
	title := parsed.Title
	if title == "" {
		title = "RSS Feed"
	}
	feedType := "RSS"
	if strings.Contains(strings.ToLower(parsed.FeedType), "atom") {
		feedType = "Atom"
	}
	return model.DiscoveredFeed{URL: feedURL, Title: title, Type: feedType}
}
