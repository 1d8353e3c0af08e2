package collector

import (
	"context"
	"encoding/json"
	"strings"

	"sourcefetch/internal/pipeline"
)

// JSONFeed collects JSON Feed 1.x documents, the format the api collector
// family normalizes platform APIs into. fetch_config["endpoint"] overrides
// the source URL.
type JSONFeed struct {
	fetch *fetcher
}

type jsonFeedDoc struct {
	Version string         `json:"version"`
	Items   []jsonFeedItem `json:"items"`
}

type jsonFeedItem struct {
	ID            json.RawMessage `json:"id"`
	URL           string          `json:"url"`
	Title         string          `json:"title"`
	ContentText   string          `json:"content_text"`
	ContentHTML   string          `json:"content_html"`
	Image         string          `json:"image"`
	DatePublished string          `json:"date_published"`
	Authors       []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"authors"`
	Attachments []struct {
		URL string `json:"url"`
	} `json:"attachments"`
	Engagement *pipeline.Engagement `json:"_engagement,omitempty"`
}

func (c *JSONFeed) Collect(ctx context.Context, job pipeline.CollectorJob) (*Collection, error) {
	url := job.URL
	if ep := job.Metadata.FetchConfig["endpoint"]; ep != "" {
		url = ep
	}
	body, err := c.fetch.get(ctx, url, "application/feed+json, application/json")
	if err != nil {
		return nil, err
	}

	var doc jsonFeedDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, Semantic(CodeParse, "invalid json feed: %v", err)
	}
	if !strings.HasPrefix(doc.Version, "https://jsonfeed.org/version/") {
		return nil, Semantic(CodeParse, "unsupported json feed version %q", doc.Version)
	}

	items := make([]pipeline.FetchedPost, 0, len(doc.Items))
	for _, it := range doc.Items {
		if p, ok := it.post(); ok {
			items = append(items, p)
		}
	}
	posts, next, truncated := window(items, job.Cursor, job.Limit)
	return &Collection{Posts: posts, NextCursor: next, Truncated: truncated}, nil
}

// id accepts both string and numeric ids; older feeds emit numbers.
func (it jsonFeedItem) id() string {
	var s string
	if err := json.Unmarshal(it.ID, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(it.ID, &n); err == nil {
		return n.String()
	}
	return ""
}

func (it jsonFeedItem) post() (pipeline.FetchedPost, bool) {
	id := it.id()
	if id == "" {
		return pipeline.FetchedPost{}, false
	}
	content := it.ContentText
	if content == "" {
		content = it.ContentHTML
	}
	p := pipeline.FetchedPost{
		ExternalID:  id,
		Title:       it.Title,
		URL:         it.URL,
		Content:     content,
		MediaURLs:   []string{},
		PublishedAt: parseTime(it.DatePublished),
		Engagement:  it.Engagement,
	}
	if len(it.Authors) > 0 {
		p.Author = pipeline.Author{Name: it.Authors[0].Name, URL: it.Authors[0].URL}
	}
	if it.Image != "" {
		p.MediaURLs = append(p.MediaURLs, it.Image)
	}
	for _, a := range it.Attachments {
		if a.URL != "" {
			p.MediaURLs = append(p.MediaURLs, a.URL)
		}
	}
	return p, true
}
