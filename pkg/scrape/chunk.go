package scrape

import (
	"fmt"

	"github.com/rhuss/codinit/pkg/retrieval"
)

// Chunk splits the document text into passages of size runes. Consecutive
// passages share overlap runes, so the window advances by size-overlap.
// The last passage may be shorter. Empty text yields no passages.
func Chunk(doc Document, size, overlap int) ([]retrieval.Passage, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be > 0, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}

	runes := []rune(doc.Text)
	var out []retrieval.Passage
	for start := 0; start < len(runes); start += size - overlap {
		end := min(start+size, len(runes))
		out = append(out, retrieval.Passage{
			Library: doc.Library,
			Source:  doc.Source,
			Content: string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return out, nil
}

// ChunkAll chunks every document and concatenates the passages.
func ChunkAll(docs []Document, size, overlap int) ([]retrieval.Passage, error) {
	var out []retrieval.Passage
	for _, d := range docs {
		ps, err := Chunk(d, size, overlap)
		if err != nil {
			return nil, err
		}
		out = append(out, ps...)
	}
	return out, nil
}
