package collector

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"sourcefetch/internal/pipeline"
)

// Scraper extracts posts from an HTML page using CSS selectors from the
// source's fetch config:
//
//	item_selector     required, one match per post
//	link_selector     default "a[href]", its href becomes the external id
//	title_selector    optional, defaults to the link text
//	content_selector  optional, defaults to the item text
//	time_selector     optional, reads the datetime attribute or text
type Scraper struct {
	fetch *fetcher
}

func (c *Scraper) Collect(ctx context.Context, job pipeline.CollectorJob) (*Collection, error) {
	cfg := job.Metadata.FetchConfig
	itemSel := cfg["item_selector"]
	if itemSel == "" {
		return nil, Semantic(CodeInvalidConfig, "scraper source has no item_selector")
	}
	base, err := url.Parse(job.URL)
	if err != nil {
		return nil, Semantic(CodeInvalidConfig, "bad url %q: %v", job.URL, err)
	}

	body, err := c.fetch.get(ctx, job.URL, "text/html")
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, Semantic(CodeParse, "parse html: %v", err)
	}

	linkSel := cfg["link_selector"]
	if linkSel == "" {
		linkSel = "a[href]"
	}

	seen := map[string]bool{}
	var items []pipeline.FetchedPost
	doc.Find(itemSel).Each(func(_ int, s *goquery.Selection) {
		link := s.Find(linkSel).First()
		if s.Is(linkSel) {
			link = s
		}
		href, ok := link.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		ref, err := base.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		ref.Fragment = ""
		abs := ref.String()
		if seen[abs] {
			return
		}
		seen[abs] = true

		title := cleanText(link.Text())
		if sel := cfg["title_selector"]; sel != "" {
			title = cleanText(s.Find(sel).First().Text())
		}
		content := cleanText(s.Text())
		if sel := cfg["content_selector"]; sel != "" {
			content = cleanText(s.Find(sel).Text())
		}

		p := pipeline.FetchedPost{
			ExternalID: abs,
			Title:      title,
			URL:        abs,
			Content:    content,
			MediaURLs:  []string{},
		}
		if sel := cfg["time_selector"]; sel != "" {
			ts := s.Find(sel).First()
			raw, ok := ts.Attr("datetime")
			if !ok {
				raw = ts.Text()
			}
			p.PublishedAt = parseTime(raw)
		}
		s.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
			src, _ := img.Attr("src")
			if u, err := base.Parse(src); err == nil {
				p.MediaURLs = append(p.MediaURLs, u.String())
			}
		})
		items = append(items, p)
	})

	posts, next, truncated := window(items, job.Cursor, job.Limit)
	return &Collection{Posts: posts, NextCursor: next, Truncated: truncated}, nil
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
