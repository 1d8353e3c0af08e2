package collector

import (
	"bytes"
	"context"
	"encoding/xml"
	"strings"
	"time"

	"sourcefetch/internal/pipeline"
)

// Feed collects RSS 2.0 and Atom feeds.
type Feed struct {
	fetch *fetcher
}

type rssDoc struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	GUID        string `xml:"guid"`
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Encoded     string `xml:"http://purl.org/rss/1.0/modules/content/ encoded"`
	PubDate     string `xml:"pubDate"`
	Author      string `xml:"author"`
	Creator     string `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Enclosures  []struct {
		URL string `xml:"url,attr"`
	} `xml:"enclosure"`
}

type atomDoc struct {
	XMLName xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID    string `xml:"id"`
	Title string `xml:"title"`
	Links []struct {
		Href string `xml:"href,attr"`
		Rel  string `xml:"rel,attr"`
	} `xml:"link"`
	Summary   string `xml:"summary"`
	Content   string `xml:"content"`
	Published string `xml:"published"`
	Updated   string `xml:"updated"`
	Author    struct {
		Name string `xml:"name"`
		URI  string `xml:"uri"`
	} `xml:"author"`
}

func (c *Feed) Collect(ctx context.Context, job pipeline.CollectorJob) (*Collection, error) {
	body, err := c.fetch.get(ctx, job.URL, "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	if err != nil {
		return nil, err
	}
	items, err := parseFeed(body)
	if err != nil {
		return nil, err
	}
	posts, next, truncated := window(items, job.Cursor, job.Limit)
	return &Collection{Posts: posts, NextCursor: next, Truncated: truncated}, nil
}

func parseFeed(body []byte) ([]pipeline.FetchedPost, error) {
	root, err := rootElement(body)
	if err != nil {
		return nil, Semantic(CodeParse, "feed is not xml: %v", err)
	}

	switch root {
	case "rss":
		var doc rssDoc
		if err := xml.Unmarshal(body, &doc); err != nil {
			return nil, Semantic(CodeParse, "invalid rss: %v", err)
		}
		out := make([]pipeline.FetchedPost, 0, len(doc.Channel.Items))
		for _, it := range doc.Channel.Items {
			if p, ok := it.post(); ok {
				out = append(out, p)
			}
		}
		return out, nil
	case "feed":
		var doc atomDoc
		if err := xml.Unmarshal(body, &doc); err != nil {
			return nil, Semantic(CodeParse, "invalid atom: %v", err)
		}
		out := make([]pipeline.FetchedPost, 0, len(doc.Entries))
		for _, e := range doc.Entries {
			if p, ok := e.post(); ok {
				out = append(out, p)
			}
		}
		return out, nil
	default:
		return nil, Semantic(CodeParse, "unsupported feed root <%s>", root)
	}
}

func rootElement(body []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}

func (it rssItem) post() (pipeline.FetchedPost, bool) {
	id := strings.TrimSpace(it.GUID)
	if id == "" {
		id = strings.TrimSpace(it.Link)
	}
	if id == "" {
		return pipeline.FetchedPost{}, false
	}
	content := it.Encoded
	if content == "" {
		content = it.Description
	}
	author := it.Creator
	if author == "" {
		author = it.Author
	}
	p := pipeline.FetchedPost{
		ExternalID:  id,
		Title:       strings.TrimSpace(it.Title),
		URL:         strings.TrimSpace(it.Link),
		Content:     strings.TrimSpace(content),
		MediaURLs:   []string{},
		PublishedAt: parseTime(it.PubDate),
		Author:      pipeline.Author{Name: strings.TrimSpace(author)},
	}
	for _, enc := range it.Enclosures {
		if enc.URL != "" {
			p.MediaURLs = append(p.MediaURLs, enc.URL)
		}
	}
	return p, true
}

func (e atomEntry) post() (pipeline.FetchedPost, bool) {
	id := strings.TrimSpace(e.ID)
	var link string
	for _, l := range e.Links {
		if l.Rel == "" || l.Rel == "alternate" {
			link = l.Href
			break
		}
	}
	if id == "" {
		id = link
	}
	if id == "" {
		return pipeline.FetchedPost{}, false
	}
	content := e.Content
	if content == "" {
		content = e.Summary
	}
	published := e.Published
	if published == "" {
		published = e.Updated
	}
	return pipeline.FetchedPost{
		ExternalID:  id,
		Title:       strings.TrimSpace(e.Title),
		URL:         link,
		Content:     strings.TrimSpace(content),
		MediaURLs:   []string{},
		PublishedAt: parseTime(published),
		Author:      pipeline.Author{Name: strings.TrimSpace(e.Author.Name), URL: e.Author.URI},
	}, true
}

var timeLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC3339Nano,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
