package vector

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"
)

// PostClass is the Weaviate class holding indexed raw posts.
const PostClass = "RawPost"

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

func postProperties() []*models.Property {
	return []*models.Property{
		{Name: "title", DataType: []string{"text"}},
		{Name: "content", DataType: []string{"text"}},
		{Name: "author", DataType: []string{"text"}},
		{Name: "postId", DataType: []string{"string"}},
		{Name: "sourceId", DataType: []string{"string"}}, // exact match
		{Name: "externalId", DataType: []string{"string"}},
		{Name: "url", DataType: []string{"string"}},
		{Name: "publishedAt", DataType: []string{"date"}},
	}
}

// EnsureSchema creates the post class, or adds properties missing from an
// older deployment of it.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.ClassExists(ctx, PostClass)
	if err != nil {
		return err
	}

	properties := postProperties()
	if !exists {
		return client.CreateClass(ctx, &models.Class{
			Class:       PostClass,
			Description: "A post fetched from a source",
			Vectorizer:  "none",
			Properties:  properties,
		})
	}

	class, err := client.GetClass(ctx, PostClass)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, PostClass, p); err != nil {
				return err
			}
		}
	}

	return nil
}
