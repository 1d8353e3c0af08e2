package post

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sourcefetch/internal/pipeline"
)

// Content is the structured body of a raw post, stored as JSONB.
type Content struct {
	Body       string               `json:"body,omitempty"`
	URL        string               `json:"url,omitempty"`
	MediaURLs  []string             `json:"media_urls,omitempty"`
	Author     pipeline.Author      `json:"author"`
	Engagement *pipeline.Engagement `json:"engagement,omitempty"`
}

func (c Content) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *Content) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*c = Content{}
		return nil
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("post content: unsupported type %T", src)
	}
}

type RawPost struct {
	ID          string     `json:"id"`
	SourceID    string     `json:"source_id"`
	ExternalID  string     `json:"external_id"`
	Title       string     `json:"title"`
	Content     Content    `json:"content"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	FetchedAt   time.Time  `json:"fetched_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Clean strips NUL bytes, which Postgres rejects in TEXT and JSONB values.
func Clean(p pipeline.FetchedPost) pipeline.FetchedPost {
	p.ExternalID = stripNUL(p.ExternalID)
	p.Title = stripNUL(p.Title)
	p.URL = stripNUL(p.URL)
	p.Content = stripNUL(p.Content)
	p.Author = pipeline.Author{
		ID:     stripNUL(p.Author.ID),
		Name:   stripNUL(p.Author.Name),
		Handle: stripNUL(p.Author.Handle),
		URL:    stripNUL(p.Author.URL),
	}
	if len(p.MediaURLs) > 0 {
		urls := make([]string, len(p.MediaURLs))
		for i, u := range p.MediaURLs {
			urls[i] = stripNUL(u)
		}
		p.MediaURLs = urls
	}
	return p
}

func stripNUL(s string) string {
	if !strings.ContainsRune(s, 0) {
		return s
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// FromFetched converts collector output into a storable post.
func FromFetched(sourceID string, p pipeline.FetchedPost, fetchedAt time.Time) RawPost {
	p = Clean(p)
	rp := RawPost{
		SourceID:   sourceID,
		ExternalID: p.ExternalID,
		Title:      p.Title,
		FetchedAt:  fetchedAt,
		Content: Content{
			Body:       p.Content,
			URL:        p.URL,
			MediaURLs:  p.MediaURLs,
			Author:     p.Author,
			Engagement: p.Engagement,
		},
	}
	if !p.PublishedAt.IsZero() {
		t := p.PublishedAt
		rp.PublishedAt = &t
	}
	return rp
}

type Repository interface {
	ExistingExternalIDs(ctx context.Context, sourceID string, externalIDs []string) (map[string]bool, error)
	SaveMany(ctx context.Context, posts []RawPost) ([]RawPost, error)
	Count(ctx context.Context) (int, error)
}
