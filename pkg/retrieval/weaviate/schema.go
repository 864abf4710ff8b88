package weaviate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// DocumentationSchema returns the class holding documentation chunks.
func DocumentationSchema(class, textKey string) *models.Class {
	filterable := true
	return &models.Class{
		Class:       class,
		Description: "A chunk of library documentation.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:         textKey,
				DataType:     []string{"text"},
				Description:  "The chunk text.",
				Tokenization: "word",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "URL or file the chunk was taken from.",
				IndexFilterable: &filterable,
				Tokenization:    "field",
			},
			{
				Name:            "library",
				DataType:        []string{"text"},
				Description:     "Library the documentation belongs to.",
				IndexFilterable: &filterable,
				Tokenization:    "field",
			},
		},
	}
}

// ImportSchema returns the class holding fully qualified import names.
func ImportSchema(class string) *models.Class {
	filterable := true
	return &models.Class{
		Class:       class,
		Description: "A name importable from a library.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:         "name",
				DataType:     []string{"text"},
				Description:  "Fully qualified import, e.g. langchain.llms.OpenAI.",
				Tokenization: "word",
			},
			{
				Name:            "library",
				DataType:        []string{"text"},
				IndexFilterable: &filterable,
				Tokenization:    "field",
			},
		},
	}
}

// EnsureSchema creates every class that does not exist yet.
func EnsureSchema(ctx context.Context, client *weaviate.Client, classes ...*models.Class) error {
	for _, class := range classes {
		if _, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx); err == nil {
			slog.Debug("weaviate class exists", "class", class.Class)
			continue
		}
		if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
			return fmt.Errorf("create class %s: %w", class.Class, err)
		}
		slog.Info("created weaviate class", "class", class.Class)
	}
	return nil
}
