package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rhuss/codinit/pkg/imports"
	"github.com/rhuss/codinit/pkg/retrieval"
	wvretrieval "github.com/rhuss/codinit/pkg/retrieval/weaviate"
	"github.com/rhuss/codinit/pkg/scrape"
)

type scrapeOptions struct {
	url      string
	dir      string
	library  string
	symbols  bool
	noEmbed  bool
	dryRun   bool
	maxPages int
}

func newScrapeCmd(a *app) *cobra.Command {
	var opts scrapeOptions

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Index library documentation for retrieval",
		Long: `Crawl a documentation site (--url) or read a directory of Markdown files
(--dir), split the text into overlapping chunks and store them in Weaviate.
With --symbols the import names found in code samples are stored as well,
for resolving names the linter reports as missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (opts.url == "") == (opts.dir == "") {
				return fmt.Errorf("exactly one of --url or --dir is required")
			}
			if opts.library == "" {
				return fmt.Errorf("--library is required")
			}
			return a.scrape(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.url, "url", "", "documentation start page")
	f.StringVar(&opts.dir, "dir", "", "directory of Markdown files")
	f.StringVarP(&opts.library, "library", "l", "", "library the documentation belongs to")
	f.BoolVar(&opts.symbols, "symbols", false, "also index import names found in the documents")
	f.BoolVar(&opts.noEmbed, "no-embed", false, "store chunks without vectors")
	f.BoolVar(&opts.dryRun, "dry-run", false, "chunk and count, but do not index")
	f.IntVar(&opts.maxPages, "max-pages", 0, "override scrape.max_pages")
	return cmd
}

func (a *app) scrape(ctx context.Context, out io.Writer, opts scrapeOptions) error {
	sc := a.cfg.Scrape

	var (
		docs []scrape.Document
		err  error
	)
	if opts.url != "" {
		maxPages := sc.MaxPages
		if opts.maxPages > 0 {
			maxPages = opts.maxPages
		}
		crawler := scrape.NewCrawler(scrape.CrawlerOptions{
			Library:     opts.library,
			MaxPages:    maxPages,
			MaxDepth:    sc.MaxDepth,
			Concurrency: sc.Concurrency,
			Rate:        sc.Rate,
			UserAgent:   sc.UserAgent,
			Logger:      slog.Default(),
		})
		docs, err = crawler.Crawl(ctx, opts.url)
	} else {
		docs, err = scrape.ReadMarkdownDir(opts.dir, opts.library)
	}
	if err != nil {
		return err
	}

	passages, err := scrape.ChunkAll(docs, sc.ChunkSize, sc.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("chunking: %w", err)
	}
	var names []string
	if opts.symbols {
		names = symbolNames(ctx, docs)
	}
	fmt.Fprintf(out, "%d documents, %d chunks, %d import names\n", len(docs), len(passages), len(names))
	if opts.dryRun {
		return nil
	}

	w := a.cfg.Retrieval.Weaviate
	wc, err := wvretrieval.NewClient(w.URL)
	if err != nil {
		return err
	}
	ixOpts := wvretrieval.IndexerOptions{
		DocClass:    w.Class,
		TextKey:     w.TextKey,
		SymbolClass: w.SymbolClass,
	}
	if !opts.noEmbed {
		ixOpts.Embedder = newOpenAI(a.cfg.Provider)
	}
	ix := wvretrieval.NewIndexer(wc, ixOpts)
	if err := ix.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	n, err := indexPassages(ctx, ix, passages)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "indexed %d chunks into %s\n", n, w.Class)

	if len(names) > 0 {
		n, err := ix.IndexSymbols(ctx, opts.library, names)
		if err != nil {
			return fmt.Errorf("indexing import names: %w", err)
		}
		fmt.Fprintf(out, "indexed %d import names into %s\n", n, w.SymbolClass)
	}
	return nil
}

// indexBatch bounds the passages embedded and sent per request.
const indexBatch = 100

func indexPassages(ctx context.Context, ix *wvretrieval.Indexer, passages []retrieval.Passage) (int, error) {
	total := 0
	for start := 0; start < len(passages); start += indexBatch {
		end := min(start+indexBatch, len(passages))
		n, err := ix.IndexPassages(ctx, passages[start:end])
		total += n
		if err != nil {
			return total, fmt.Errorf("indexing chunks %d-%d: %w", start, end, err)
		}
		slog.Info("indexed chunks", "done", end, "total", len(passages))
	}
	return total, nil
}

// symbolNames collects the import names of every document that parses as
// Python. Documents that do not parse contribute nothing.
func symbolNames(ctx context.Context, docs []scrape.Document) []string {
	seen := make(map[string]bool)
	var names []string
	for _, d := range docs {
		found, err := imports.ImportedNames(ctx, d.Text)
		if err != nil {
			continue
		}
		for _, n := range found {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	return names
}
