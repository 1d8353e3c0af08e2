package weaviate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"sourcefetch/features/post"
	"sourcefetch/internal/vector"
)

// Store indexes raw posts for keyword search. Object ids are the post ids, so
// re-indexing a post overwrites it.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, s)
}

func (s *Store) ClassExists(ctx context.Context, className string) (bool, error) {
	return s.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
}

func (s *Store) CreateClass(ctx context.Context, class *models.Class) error {
	return s.client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

func (s *Store) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return s.client.Schema().ClassGetter().WithClassName(className).Do(ctx)
}

func (s *Store) AddProperty(ctx context.Context, className string, property *models.Property) error {
	return s.client.Schema().PropertyCreator().WithClassName(className).WithProperty(property).Do(ctx)
}

func (s *Store) IndexPosts(ctx context.Context, posts []post.RawPost) error {
	if len(posts) == 0 {
		return nil
	}

	objs := make([]*models.Object, 0, len(posts))
	for _, p := range posts {
		props := map[string]interface{}{
			"postId":     p.ID,
			"sourceId":   p.SourceID,
			"externalId": p.ExternalID,
			"title":      p.Title,
			"content":    p.Content.Body,
			"url":        p.Content.URL,
			"author":     p.Content.Author.Name,
		}
		if p.PublishedAt != nil {
			props["publishedAt"] = p.PublishedAt.UTC().Format(time.RFC3339)
		}
		objs = append(objs, &models.Object{
			Class:      vector.PostClass,
			ID:         strfmt.UUID(p.ID),
			Properties: props,
		})
	}

	res, err := s.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
	if err != nil {
		return err
	}

	var failed []string
	for _, r := range res {
		if r.Result != nil && r.Result.Errors != nil {
			for _, e := range r.Result.Errors.Error {
				failed = append(failed, e.Message)
			}
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("index posts: %d errors: %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}

// Search runs a BM25 query over title and content, optionally scoped to one source.
func (s *Store) Search(ctx context.Context, query, sourceID string, limit int) ([]post.SearchHit, error) {
	bm25 := s.client.GraphQL().Bm25ArgBuilder().
		WithQuery(query).
		WithProperties("title", "content")

	fields := []graphql.Field{
		{Name: "postId"},
		{Name: "sourceId"},
		{Name: "externalId"},
		{Name: "title"},
		{Name: "url"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "score"}}},
	}

	get := s.client.GraphQL().Get().
		WithClassName(vector.PostClass).
		WithBM25(bm25).
		WithLimit(limit).
		WithFields(fields...)
	if sourceID != "" {
		get = get.WithWhere(filters.Where().
			WithPath([]string{"sourceId"}).
			WithOperator(filters.Equal).
			WithValueString(sourceID))
	}

	res, err := get.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	var hits []post.SearchHit
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if objs, ok := data[vector.PostClass].([]interface{}); ok {
			for _, o := range objs {
				props, ok := o.(map[string]interface{})
				if !ok {
					continue
				}
				h := post.SearchHit{}
				h.PostID, _ = props["postId"].(string)
				h.SourceID, _ = props["sourceId"].(string)
				h.ExternalID, _ = props["externalId"].(string)
				h.Title, _ = props["title"].(string)
				h.URL, _ = props["url"].(string)
				if additional, ok := props["_additional"].(map[string]interface{}); ok {
					h.Score = parseScore(additional["score"])
				}
				hits = append(hits, h)
			}
		}
	}
	return hits, nil
}

func (s *Store) CountPosts(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.PostClass).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	if data, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if list, ok := data[vector.PostClass].([]interface{}); ok && len(list) > 0 {
			if item, ok := list[0].(map[string]interface{}); ok {
				if meta, ok := item["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}

// Weaviate returns the score as a string in some versions.
func parseScore(v interface{}) float32 {
	switch s := v.(type) {
	case float64:
		return float32(s)
	case string:
		var f float64
		if _, err := fmt.Sscanf(s, "%f", &f); err == nil {
			return float32(f)
		}
	}
	return 0
}
