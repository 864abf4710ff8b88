package weaviate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/rhuss/codinit/pkg/provider"
	"github.com/rhuss/codinit/pkg/retrieval"
)

// Indexer writes documentation chunks and import names.
type Indexer struct {
	client      *weaviate.Client
	docClass    string
	textKey     string
	symbolClass string
	embedder    provider.Embedder
}

// IndexerOptions configures an Indexer.
type IndexerOptions struct {
	DocClass    string
	TextKey     string
	SymbolClass string
	Embedder    provider.Embedder // optional; chunks are stored without vectors when nil
}

// NewIndexer returns an Indexer.
func NewIndexer(client *weaviate.Client, opts IndexerOptions) *Indexer {
	if opts.DocClass == "" {
		opts.DocClass = DefaultDocClass
	}
	if opts.TextKey == "" {
		opts.TextKey = DefaultTextKey
	}
	if opts.SymbolClass == "" {
		opts.SymbolClass = DefaultSymbolClass
	}
	return &Indexer{
		client:      client,
		docClass:    opts.DocClass,
		textKey:     opts.TextKey,
		symbolClass: opts.SymbolClass,
		embedder:    opts.Embedder,
	}
}

// EnsureSchema creates both classes if needed.
func (ix *Indexer) EnsureSchema(ctx context.Context) error {
	return EnsureSchema(ctx, ix.client,
		DocumentationSchema(ix.docClass, ix.textKey),
		ImportSchema(ix.symbolClass))
}

// IndexPassages stores passages in batches and returns how many were
// accepted.
func (ix *Indexer) IndexPassages(ctx context.Context, passages []retrieval.Passage) (int, error) {
	objects := make([]*models.Object, 0, len(passages))
	for _, p := range passages {
		obj := &models.Object{
			Class: ix.docClass,
			Properties: map[string]interface{}{
				ix.textKey: p.Content,
				"source":   p.Source,
				"library":  p.Library,
			},
		}
		if ix.embedder != nil {
			vec, err := ix.embedder.Embed(ctx, p.Content)
			if err != nil {
				return 0, fmt.Errorf("embed chunk from %s: %w", p.Source, err)
			}
			obj.Vector = vec
		}
		objects = append(objects, obj)
	}
	return ix.batch(ctx, objects)
}

// IndexSymbols stores fully qualified import names for library.
func (ix *Indexer) IndexSymbols(ctx context.Context, library string, names []string) (int, error) {
	objects := make([]*models.Object, 0, len(names))
	for _, n := range names {
		objects = append(objects, &models.Object{
			Class: ix.symbolClass,
			Properties: map[string]interface{}{
				"name":    n,
				"library": library,
			},
		})
	}
	return ix.batch(ctx, objects)
}

func (ix *Indexer) batch(ctx context.Context, objects []*models.Object) (int, error) {
	indexed := 0
	for i := 0; i < len(objects); i += BatchSize {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		end := min(i+BatchSize, len(objects))

		resp, err := ix.client.Batch().ObjectsBatcher().WithObjects(objects[i:end]...).Do(ctx)
		if err != nil {
			return indexed, fmt.Errorf("batch import: %w", err)
		}
		for _, item := range resp {
			if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
				slog.Warn("weaviate batch item rejected", "error", item.Result.Errors.Error[0].Message)
				continue
			}
			indexed++
		}
		slog.Info("indexed batch", "count", end-i, "total_indexed", indexed)
	}
	return indexed, nil
}
