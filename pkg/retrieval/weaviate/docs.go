package weaviate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/rhuss/codinit/pkg/debug"
	"github.com/rhuss/codinit/pkg/provider"
	"github.com/rhuss/codinit/pkg/retrieval"
)

// DocOptions configures a DocRetriever.
type DocOptions struct {
	Class    string  // default: DocumentationFile
	TextKey  string  // default: content
	K        int     // default: 10
	Alpha    float32 // default: 0.75
	Embedder provider.Embedder
}

// DocRetriever runs hybrid search over documentation chunks.
type DocRetriever struct {
	client *weaviate.Client
	opts   DocOptions
}

var _ retrieval.Retriever = (*DocRetriever)(nil)

// NewDocRetriever returns a DocRetriever.
func NewDocRetriever(client *weaviate.Client, opts DocOptions) *DocRetriever {
	if opts.Class == "" {
		opts.Class = DefaultDocClass
	}
	if opts.TextKey == "" {
		opts.TextKey = DefaultTextKey
	}
	if opts.K <= 0 {
		opts.K = DefaultK
	}
	if opts.Alpha <= 0 {
		opts.Alpha = DefaultAlpha
	}
	return &DocRetriever{client: client, opts: opts}
}

// Retrieve returns the top-k chunks for query joined by blank lines. When an
// embedder is configured its vector is passed along; an embedding failure
// degrades to keyword-weighted search.
func (r *DocRetriever) Retrieve(ctx context.Context, query string) (string, error) {
	hybrid := r.client.GraphQL().HybridArgumentBuilder().
		WithQuery(query).
		WithAlpha(r.opts.Alpha)

	if r.opts.Embedder != nil {
		vec, err := r.opts.Embedder.Embed(ctx, query)
		if err != nil {
			slog.Warn("query embedding failed, searching without vector", "error", err.Error())
		} else {
			hybrid = hybrid.WithVector(vec)
		}
	}

	result, err := r.client.GraphQL().Get().
		WithClassName(r.opts.Class).
		WithFields(fields(r.opts.TextKey)...).
		WithHybrid(hybrid).
		WithLimit(r.opts.K).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("documentation search: %w", err)
	}
	objects, err := getObjects(result, r.opts.Class)
	if err != nil {
		return "", err
	}

	passages := make([]string, 0, len(objects))
	for _, obj := range objects {
		passages = append(passages, getString(obj, r.opts.TextKey))
	}
	debug.Log("retrieval", "documentation search", "query", query, "hits", len(passages))
	return retrieval.Join(passages), nil
}
