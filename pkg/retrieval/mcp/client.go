// Package mcp resolves library symbols through a tool exposed by a remote
// Model Context Protocol server.
package mcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/rhuss/codinit/pkg/config"
	"github.com/rhuss/codinit/pkg/debug"
	"github.com/rhuss/codinit/pkg/retrieval"
)

// DefaultTool is the tool called when the configuration names none.
const DefaultTool = "lookup_symbol"

// SymbolLookup calls an MCP tool with {"query": q} and returns the text
// content of the result. The session is opened on first use.
type SymbolLookup struct {
	cfg config.MCPServerConfig

	mu      sync.Mutex
	session *mcp.ClientSession
}

var _ retrieval.SymbolLookup = (*SymbolLookup)(nil)

// New creates a SymbolLookup for the given server. No connection is made
// until Connect or the first Lookup.
func New(cfg config.MCPServerConfig) *SymbolLookup {
	if cfg.Tool == "" {
		cfg.Tool = DefaultTool
	}
	return &SymbolLookup{cfg: cfg}
}

// Connect opens the session using a transport built from the configuration.
func (l *SymbolLookup) Connect(ctx context.Context) error {
	return l.ConnectWithTransport(ctx, nil)
}

// ConnectWithTransport opens the session over transport. A nil transport
// is built from the configuration.
func (l *SymbolLookup) ConnectWithTransport(ctx context.Context, transport mcp.Transport) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connectLocked(ctx, transport)
}

func (l *SymbolLookup) connectLocked(ctx context.Context, transport mcp.Transport) error {
	if l.session != nil {
		return nil
	}
	client := mcp.NewClient(
		&mcp.Implementation{Name: "codinit", Version: "1.0.0"},
		&mcp.ClientOptions{Capabilities: &mcp.ClientCapabilities{}},
	)

	if transport == nil {
		t, err := l.createTransport(ctx)
		if err != nil {
			return fmt.Errorf("creating transport for %q: %w", l.cfg.Name, err)
		}
		transport = t
	}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to MCP server %q: %w", l.cfg.Name, err)
	}
	l.session = session
	debug.Log("retrieval", "mcp session opened", "server", l.cfg.Name, "tool", l.cfg.Tool)
	return nil
}

func (l *SymbolLookup) createTransport(ctx context.Context) (mcp.Transport, error) {
	httpClient := l.httpClient(ctx)

	switch l.cfg.Transport {
	case "sse":
		return &mcp.SSEClientTransport{Endpoint: l.cfg.URL, HTTPClient: httpClient}, nil
	case "streamable-http", "":
		return &mcp.StreamableClientTransport{Endpoint: l.cfg.URL, HTTPClient: httpClient}, nil
	default:
		return nil, fmt.Errorf("unsupported transport type %q", l.cfg.Transport)
	}
}

// httpClient returns a client that adds the configured headers and, for
// oauth_client_credentials, a bearer token that is refreshed as it expires.
func (l *SymbolLookup) httpClient(ctx context.Context) *http.Client {
	base := http.DefaultClient
	if l.cfg.Auth.Type == "oauth_client_credentials" {
		cc := clientcredentials.Config{
			ClientID:     l.cfg.Auth.ClientID,
			ClientSecret: l.cfg.Auth.ClientSecret,
			TokenURL:     l.cfg.Auth.TokenURL,
			Scopes:       l.cfg.Auth.Scopes,
		}
		// The token source outlives ctx, so it must not be cancelled with it.
		base = cc.Client(context.WithoutCancel(ctx))
	}
	if len(l.cfg.Headers) == 0 {
		if base == http.DefaultClient {
			return nil
		}
		return base
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &http.Client{Transport: &headerTransport{base: rt, headers: l.cfg.Headers}}
}

// headerTransport sets static headers on every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// Lookup calls the configured tool. A result flagged as an error is
// returned as an error carrying the tool's text.
func (l *SymbolLookup) Lookup(ctx context.Context, query string) (string, error) {
	l.mu.Lock()
	if err := l.connectLocked(ctx, nil); err != nil {
		l.mu.Unlock()
		return "", err
	}
	session := l.session
	l.mu.Unlock()

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      l.cfg.Tool,
		Arguments: map[string]any{"query": query},
	})
	if err != nil {
		return "", fmt.Errorf("calling %s on %q: %w", l.cfg.Tool, l.cfg.Name, err)
	}

	text := textContent(result)
	if result.IsError {
		return "", fmt.Errorf("%s on %q failed: %s", l.cfg.Tool, l.cfg.Name, text)
	}
	debug.Log("retrieval", "mcp lookup", "query", query, "bytes", len(text))
	return text, nil
}

// Close ends the session if one is open.
func (l *SymbolLookup) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil {
		return nil
	}
	err := l.session.Close()
	l.session = nil
	return err
}

func textContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
