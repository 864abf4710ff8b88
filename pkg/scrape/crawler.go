// Package scrape collects library documentation for the retrieval index:
// a same-host web crawler, a local markdown reader, and a rune chunker.
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rhuss/codinit/pkg/debug"
	"github.com/rhuss/codinit/pkg/observability"
)

// maxBodySize bounds how much of a page is read.
const maxBodySize = 4 << 20

// Document is the extracted text of one page or file.
type Document struct {
	Library string
	Source  string
	Title   string
	Text    string
}

// CrawlerOptions configures a Crawler. Zero values fall back to defaults.
type CrawlerOptions struct {
	Library     string
	MaxPages    int     // default: 200
	MaxDepth    int     // links followed from the start page, default: 3
	Concurrency int     // default: 4
	Rate        float64 // requests per second, <= 0 means unlimited
	UserAgent   string
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Crawler walks the pages of one documentation site breadth first.
type Crawler struct {
	opts    CrawlerOptions
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewCrawler creates a Crawler.
func NewCrawler(opts CrawlerOptions) *Crawler {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 200
	}
	if opts.MaxDepth < 0 {
		opts.MaxDepth = 0
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "codinit-scraper/1.0"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		opts:    opts,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// page is the outcome of fetching one URL.
type page struct {
	doc   *Document
	links []*url.URL
}

// Crawl fetches startURL and the same-host pages reachable from it, up to
// MaxDepth links away and MaxPages pages in total. Pages that fail to load
// are logged and skipped. Documents are returned in breadth-first order.
func (c *Crawler) Crawl(ctx context.Context, startURL string) ([]Document, error) {
	start, err := url.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("invalid start URL %q: %w", startURL, err)
	}
	if (start.Scheme != "http" && start.Scheme != "https") || start.Host == "" {
		return nil, fmt.Errorf("invalid start URL %q: need an absolute http(s) URL", startURL)
	}
	start.Fragment = ""

	visited := map[string]bool{start.String(): true}
	frontier := []*url.URL{start}
	var docs []Document
	fetched := 0

	for depth := 0; len(frontier) > 0 && fetched < c.opts.MaxPages; depth++ {
		if budget := c.opts.MaxPages - fetched; len(frontier) > budget {
			frontier = frontier[:budget]
		}
		fetched += len(frontier)

		results := make([]page, len(frontier))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.opts.Concurrency)
		for i, u := range frontier {
			g.Go(func() error {
				if err := c.limiter.Wait(gctx); err != nil {
					return err
				}
				p, err := c.fetch(gctx, u)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					observability.ScrapePagesTotal.WithLabelValues("error").Inc()
					c.logger.Warn("skipping page", "url", u.String(), "error", err)
					return nil
				}
				observability.ScrapePagesTotal.WithLabelValues("ok").Inc()
				results[i] = p
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return docs, fmt.Errorf("crawling %s: %w", startURL, err)
		}

		var next []*url.URL
		for _, p := range results {
			if p.doc == nil {
				continue
			}
			p.doc.Library = c.opts.Library
			docs = append(docs, *p.doc)
			if depth >= c.opts.MaxDepth {
				continue
			}
			for _, l := range p.links {
				if l.Host != start.Host || visited[l.String()] {
					continue
				}
				visited[l.String()] = true
				next = append(next, l)
			}
		}
		debug.Log("scrape", "crawl level done", "depth", depth, "pages", len(frontier), "next", len(next))
		frontier = next
	}
	return docs, nil
}

func (c *Crawler) fetch(ctx context.Context, u *url.URL) (page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return page{}, err
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return page{}, fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return page{}, fmt.Errorf("HTTP %d from %s", resp.StatusCode, u)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return page{}, fmt.Errorf("unsupported content type %q", ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return page{}, fmt.Errorf("read error: %w", err)
	}
	return extract(body, u)
}

// extract pulls the readable text, title and outgoing links out of an HTML
// page. Readability is tried first; the visible text is the fallback.
func extract(body []byte, u *url.URL) (page, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return page{}, fmt.Errorf("parsing html: %w", err)
	}

	var (
		title string
		links []*url.URL
		seen  = map[string]bool{}
		text  strings.Builder
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			case "title":
				if n.FirstChild != nil && title == "" {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			case "a":
				if l := resolveLink(u, attr(n, "href")); l != nil && !seen[l.String()] {
					seen[l.String()] = true
					links = append(links, l)
				}
			}
		}
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				text.WriteString(s)
				text.WriteByte('\n')
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)

	doc := &Document{Source: u.String(), Title: title, Text: strings.TrimSpace(text.String())}
	if article, err := readability.FromReader(bytes.NewReader(body), u); err == nil && strings.TrimSpace(article.TextContent) != "" {
		doc.Text = strings.TrimSpace(article.TextContent)
		if article.Title != "" {
			doc.Title = article.Title
		}
	}
	return page{doc: doc, links: links}, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// resolveLink resolves href against base and drops the fragment. It returns
// nil for non-http links.
func resolveLink(base *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	l := base.ResolveReference(ref)
	if l.Scheme != "http" && l.Scheme != "https" {
		return nil
	}
	l.Fragment = ""
	return l
}
