package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/codinit/pkg/config"
)

// connectTestServer starts an in-memory MCP server exposing handler under
// tool and returns a lookup connected to it.
func connectTestServer(t *testing.T, tool string, handler mcp.ToolHandler) *SymbolLookup {
	t.Helper()

	server := mcp.NewServer(&mcp.Implementation{Name: "symbols", Version: "1.0.0"}, nil)
	server.AddTool(&mcp.Tool{
		Name:        tool,
		Description: "Symbol lookup",
		InputSchema: map[string]any{"type": "object"},
	}, handler)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() {
		_ = server.Run(ctx, serverTransport)
	}()

	l := New(config.MCPServerConfig{Name: "symbols", Tool: tool})
	if err := l.ConnectWithTransport(ctx, clientTransport); err != nil {
		t.Fatalf("ConnectWithTransport: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLookup(t *testing.T) {
	l := connectTestServer(t, DefaultTool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return nil, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: "name: " + args.Query + ".Series"},
				&mcp.TextContent{Text: "name: " + args.Query + ".DataFrame"},
			},
		}, nil
	})

	got, err := l.Lookup(context.Background(), "pandas")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	want := "name: pandas.Series\nname: pandas.DataFrame"
	if got != want {
		t.Errorf("Lookup = %q, want %q", got, want)
	}
}

func TestLookupToolError(t *testing.T) {
	l := connectTestServer(t, "find", func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "index unavailable"}},
			IsError: true,
		}, nil
	})

	_, err := l.Lookup(context.Background(), "numpy")
	if err == nil {
		t.Fatal("expected error for tool error result")
	}
	if !strings.Contains(err.Error(), "index unavailable") {
		t.Errorf("error = %v, want it to carry the tool text", err)
	}
}

func TestLookupUnknownTool(t *testing.T) {
	l := connectTestServer(t, "other", func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{}, nil
	})
	l.cfg.Tool = "missing"

	if _, err := l.Lookup(context.Background(), "x"); err == nil {
		t.Error("expected error for unknown tool")
	}
}

func TestNewDefaultsTool(t *testing.T) {
	if got := New(config.MCPServerConfig{}).cfg.Tool; got != DefaultTool {
		t.Errorf("tool = %q, want %q", got, DefaultTool)
	}
}

func TestCreateTransport(t *testing.T) {
	tests := []struct {
		transport string
		wantErr   bool
	}{
		{"", false},
		{"streamable-http", false},
		{"sse", false},
		{"stdio", true},
	}
	for _, tt := range tests {
		l := New(config.MCPServerConfig{URL: "http://localhost:9999/mcp", Transport: tt.transport})
		_, err := l.createTransport(context.Background())
		if (err != nil) != tt.wantErr {
			t.Errorf("createTransport(%q) error = %v, wantErr %v", tt.transport, err, tt.wantErr)
		}
	}
}

func TestHTTPClientHeadersAndToken(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	var gotAuth, gotKey string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("X-Api-Key")
	}))
	defer api.Close()

	l := New(config.MCPServerConfig{
		Headers: map[string]string{"X-Api-Key": "k"},
		Auth: config.MCPAuthConfig{
			Type:     "oauth_client_credentials",
			TokenURL: tokenSrv.URL,
			ClientID: "codinit",
		},
	})
	c := l.httpClient(context.Background())
	if c == nil {
		t.Fatal("expected a client")
	}
	resp, err := c.Get(api.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer tok-1" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer tok-1")
	}
	if gotKey != "k" {
		t.Errorf("X-Api-Key = %q, want %q", gotKey, "k")
	}
}

func TestHTTPClientPlain(t *testing.T) {
	if c := New(config.MCPServerConfig{}).httpClient(context.Background()); c != nil {
		t.Errorf("expected nil client without headers or auth, got %v", c)
	}
}
