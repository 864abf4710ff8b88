// Package retrieval defines how the healing loop looks up documentation and
// library symbols. Backends live in the weaviate and mcp subpackages.
package retrieval

import (
	"context"
	"regexp"
	"strings"
)

// Retriever returns documentation passages relevant to a query, joined by
// blank lines.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

// SymbolLookup resolves a symbol or module name to the matching entries of
// the library's import index.
type SymbolLookup interface {
	Lookup(ctx context.Context, query string) (string, error)
}

// Passage is one chunk of documentation to index.
type Passage struct {
	Library string
	Source  string
	Content string
}

// Nop is a Retriever and SymbolLookup that finds nothing.
type Nop struct{}

var (
	_ Retriever    = Nop{}
	_ SymbolLookup = Nop{}
)

func (Nop) Retrieve(context.Context, string) (string, error) { return "", nil }

func (Nop) Lookup(context.Context, string) (string, error) { return "", nil }

var quotedQuery = regexp.MustCompile(`"([^"]*)"|'([^']*)'`)

// SanitizeQuery reduces a model-produced lookup query to a search term: the
// first quoted substring if there is one, otherwise the text without quotes
// and backticks.
func SanitizeQuery(q string) string {
	if m := quotedQuery.FindStringSubmatch(q); m != nil {
		if s := strings.TrimSpace(m[1] + m[2]); s != "" {
			return s
		}
	}
	return strings.TrimSpace(strings.NewReplacer("`", "", `"`, "", "'", "").Replace(q))
}

// Join concatenates passages the way Retrieve reports them.
func Join(passages []string) string {
	out := make([]string, 0, len(passages))
	for _, p := range passages {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
