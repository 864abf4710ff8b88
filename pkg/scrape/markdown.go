package scrape

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/rhuss/codinit/pkg/debug"
)

// ReadMarkdownDir reads every *.md file under dir and returns one Document
// per file, in lexical path order.
func ReadMarkdownDir(dir, library string) ([]Document, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(paths)

	docs := make([]Document, 0, len(paths))
	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		title, body := MarkdownText(src)
		docs = append(docs, Document{
			Library: library,
			Source:  path,
			Title:   title,
			Text:    body,
		})
	}
	debug.Log("scrape", "markdown files read", "dir", dir, "files", len(docs))
	return docs, nil
}

// MarkdownText renders markdown source as plain text. Code blocks keep
// their content; raw HTML is dropped. The first heading is returned as the
// title.
func MarkdownText(src []byte) (title, body string) {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var b strings.Builder
	newline := func() {
		if s := b.String(); s != "" && !strings.HasSuffix(s, "\n") {
			b.WriteByte('\n')
		}
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(n.Segment.Value(src))
				if n.SoftLineBreak() || n.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				b.Write(n.Value)
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				newline()
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(src))
				}
				newline()
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Heading:
			if entering {
				newline()
				return ast.WalkContinue, nil
			}
			if title == "" {
				lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
				title = strings.TrimSpace(lines[len(lines)-1])
			}
			newline()
		default:
			if !entering && n.Type() == ast.TypeBlock {
				newline()
			}
		}
		return ast.WalkContinue, nil
	})
	return title, strings.TrimSpace(b.String())
}
