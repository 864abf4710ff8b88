package weaviate

import (
	"context"
	"fmt"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/rhuss/codinit/pkg/debug"
	"github.com/rhuss/codinit/pkg/retrieval"
)

// SymbolIndex looks up import names with BM25.
type SymbolIndex struct {
	client *weaviate.Client
	class  string
	k      int
}

var _ retrieval.SymbolLookup = (*SymbolIndex)(nil)

// NewSymbolIndex returns a SymbolIndex over class (default "Import")
// returning at most k hits (default 5).
func NewSymbolIndex(client *weaviate.Client, class string, k int) *SymbolIndex {
	if class == "" {
		class = DefaultSymbolClass
	}
	if k <= 0 {
		k = DefaultSymbolK
	}
	return &SymbolIndex{client: client, class: class, k: k}
}

// Lookup renders matching import names as "name: <n>" lines.
func (s *SymbolIndex) Lookup(ctx context.Context, query string) (string, error) {
	result, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(fields("name")...).
		WithBM25(s.client.GraphQL().Bm25ArgBuilder().WithQuery(query)).
		WithLimit(s.k).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("symbol search: %w", err)
	}
	objects, err := getObjects(result, s.class)
	if err != nil {
		return "", err
	}

	debug.Log("retrieval", "symbol search", "query", query, "hits", len(objects))
	if len(objects) == 0 {
		return "no matching symbols for " + query, nil
	}
	lines := make([]string, 0, len(objects))
	for _, obj := range objects {
		lines = append(lines, "name: "+getString(obj, "name"))
	}
	return strings.Join(lines, "\n"), nil
}
