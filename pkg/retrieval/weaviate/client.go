// Package weaviate implements documentation retrieval, symbol lookup and
// indexing on a Weaviate vector store.
//
// Documentation chunks live in one class (default "DocumentationFile") and
// are searched with hybrid BM25 and vector search. Imported symbol names
// live in a second class (default "Import") and are matched with BM25 only.
package weaviate

import (
	"fmt"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// Defaults for the two classes.
const (
	DefaultDocClass    = "DocumentationFile"
	DefaultSymbolClass = "Import"
	DefaultTextKey     = "content"
	DefaultK           = 10
	DefaultSymbolK     = 5
	DefaultAlpha       = 0.75
	BatchSize          = 100
)

// NewClient returns a Weaviate client for a URL such as
// "http://localhost:8080". A URL without scheme means http.
func NewClient(url string) (*weaviate.Client, error) {
	cfg := weaviate.Config{Host: url, Scheme: "http"}
	switch {
	case strings.HasPrefix(url, "https://"):
		cfg.Scheme = "https"
		cfg.Host = strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		cfg.Host = strings.TrimPrefix(url, "http://")
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Host == "" {
		return nil, fmt.Errorf("weaviate: empty host in %q", url)
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return client, nil
}

// getObjects runs a Get query and returns the objects of class.
func getObjects(result *models.GraphQLResponse, class string) ([]map[string]interface{}, error) {
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate query error: %s", result.Errors[0].Message)
	}
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	raw, ok := data[class].([]interface{})
	if !ok {
		return nil, nil
	}
	objects := make([]map[string]interface{}, 0, len(raw))
	for _, obj := range raw {
		if m, ok := obj.(map[string]interface{}); ok {
			objects = append(objects, m)
		}
	}
	return objects, nil
}

func getString(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func fields(names ...string) []graphql.Field {
	out := make([]graphql.Field, len(names))
	for i, n := range names {
		out[i] = graphql.Field{Name: n}
	}
	return out
}
