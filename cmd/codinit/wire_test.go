package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rhuss/codinit/pkg/config"
	"github.com/rhuss/codinit/pkg/provider/openai"
	"github.com/rhuss/codinit/pkg/storage"
)

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  config.StorageConfig
	}{
		{"memory", config.StorageConfig{Type: "memory", MaxSize: 10}},
		{"sqlite", config.StorageConfig{Type: "sqlite", Path: filepath.Join(dir, "runs.db")}},
		{"jsonfile", config.StorageConfig{Type: "jsonfile", Path: filepath.Join(dir, "runs.json")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store, err := openStore(ctx, tt.cfg)
			if err != nil {
				t.Fatalf("openStore: %v", err)
			}
			defer store.Close()

			run := storage.NewRun("abc", "msg")
			if err := store.SaveRun(ctx, run); err != nil {
				t.Fatalf("SaveRun: %v", err)
			}
			got, err := store.GetRun(ctx, run.RunID)
			if err != nil {
				t.Fatalf("GetRun: %v", err)
			}
			if got.GitSHA != "abc" {
				t.Errorf("got git SHA %q, want %q", got.GitSHA, "abc")
			}
		})
	}

	if _, err := openStore(context.Background(), config.StorageConfig{Type: "redis"}); err == nil {
		t.Error("expected an error for an unknown store type")
	}
}

func TestBuildGeneratorRejectsUnknownRole(t *testing.T) {
	cfg := config.Defaults()
	cfg.Provider.Models = map[string]string{"reviewer": "gpt-4o-mini"}
	if _, err := buildGenerator(&cfg, openai.New(openai.Config{APIKey: "k"})); err == nil {
		t.Error("expected an error for an unknown role")
	}

	cfg.Provider.Models = map[string]string{"planner": "gpt-4o-mini"}
	if _, err := buildGenerator(&cfg, openai.New(openai.Config{APIKey: "k"})); err != nil {
		t.Errorf("buildGenerator: %v", err)
	}
}

func TestBuildSandbox(t *testing.T) {
	tests := []struct {
		mode       string
		wantRunner string
	}{
		{"local", "local"},
		{"remote", "remote"},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			cfg := config.Defaults().Sandbox
			cfg.Mode = tt.mode
			cfg.RemoteURL = "http://sandbox:8080"
			m, err := buildSandbox(cfg, slog.Default())
			if err != nil {
				t.Fatalf("buildSandbox: %v", err)
			}
			if got := m.Runner().Name(); got != tt.wantRunner {
				t.Errorf("got runner %q, want %q", got, tt.wantRunner)
			}
		})
	}

	if _, err := buildSandbox(config.SandboxConfig{Mode: "docker"}, slog.Default()); err == nil {
		t.Error("expected an error for an unknown mode")
	}
}

func TestBuildRetrievalNone(t *testing.T) {
	var cl cleanups
	docs, symbols, err := buildRetrieval(config.Defaults().Retrieval, nil, &cl)
	if err != nil {
		t.Fatalf("buildRetrieval: %v", err)
	}
	text, err := docs.Retrieve(context.Background(), "anything")
	if err != nil || text != "" {
		t.Errorf("Retrieve = %q, %v, want empty", text, err)
	}
	text, err = symbols.Lookup(context.Background(), "anything")
	if err != nil || text != "" {
		t.Errorf("Lookup = %q, %v, want empty", text, err)
	}
	if len(cl) != 0 {
		t.Errorf("got %d cleanups, want 0", len(cl))
	}
}

func TestBuildRetrievalMCPRegistersCleanup(t *testing.T) {
	cfg := config.Defaults().Retrieval
	cfg.SymbolBackend = "mcp"
	cfg.MCP.URL = "http://localhost:1/mcp"

	var cl cleanups
	if _, _, err := buildRetrieval(cfg, nil, &cl); err != nil {
		t.Fatalf("buildRetrieval: %v", err)
	}
	if len(cl) != 1 {
		t.Fatalf("got %d cleanups, want 1", len(cl))
	}
	cl.run()
}

func TestCleanupsRunInReverse(t *testing.T) {
	var order []int
	var cl cleanups
	for i := range 3 {
		cl.add(func() { order = append(order, i) })
	}
	cl.run()
	if len(order) != 3 || order[0] != 2 || order[2] != 0 {
		t.Errorf("got order %v, want [2 1 0]", order)
	}
}

func serveThrough(mw func(http.Handler) http.Handler, r *http.Request) int {
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec.Code
}

func TestBuildAuth(t *testing.T) {
	withKey := func(key string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/v1/generate", nil)
		if key != "" {
			r.Header.Set("Authorization", "Bearer "+key)
		}
		return r
	}

	tests := []struct {
		name    string
		setup   func(*config.Config)
		request *http.Request
		want    int
	}{
		{
			name:    "none lets anonymous callers in",
			setup:   func(*config.Config) {},
			request: withKey(""),
			want:    http.StatusOK,
		},
		{
			name: "apikey accepts a configured key",
			setup: func(c *config.Config) {
				c.Auth.Type = "apikey"
				c.Auth.APIKeys = []config.APIKeyConfig{{Key: "s3cret", Subject: "alice"}}
			},
			request: withKey("s3cret"),
			want:    http.StatusOK,
		},
		{
			name: "apikey rejects a missing key",
			setup: func(c *config.Config) {
				c.Auth.Type = "apikey"
				c.Auth.APIKeys = []config.APIKeyConfig{{Key: "s3cret"}}
			},
			request: withKey(""),
			want:    http.StatusUnauthorized,
		},
		{
			name: "metrics path bypasses auth",
			setup: func(c *config.Config) {
				c.Auth.Type = "apikey"
				c.Auth.APIKeys = []config.APIKeyConfig{{Key: "s3cret"}}
				c.Observability.Metrics.Path = "/internal/metrics"
			},
			request: httptest.NewRequest(http.MethodGet, "/internal/metrics", nil),
			want:    http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			tt.setup(&cfg)
			mw, err := buildAuth(&cfg)
			if err != nil {
				t.Fatalf("buildAuth: %v", err)
			}
			if got := serveThrough(mw, tt.request); got != tt.want {
				t.Errorf("got status %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBuildAuthRateLimitRejectsSecondRequest(t *testing.T) {
	cfg := config.Defaults()
	cfg.Auth.RateLimit.RequestsPerSecond = 0.001
	cfg.Auth.RateLimit.Burst = 1
	mw, err := buildAuth(&cfg)
	if err != nil {
		t.Fatalf("buildAuth: %v", err)
	}
	first := serveThrough(mw, httptest.NewRequest(http.MethodPost, "/v1/generate", nil))
	second := serveThrough(mw, httptest.NewRequest(http.MethodPost, "/v1/generate", nil))
	if first != http.StatusOK || second != http.StatusTooManyRequests {
		t.Errorf("got statuses %d, %d, want 200, 429", first, second)
	}
}

func TestBuildAuthErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*config.Config)
	}{
		{"apikey without keys", func(c *config.Config) { c.Auth.Type = "apikey" }},
		{"jwt without secret", func(c *config.Config) { c.Auth.Type = "jwt" }},
		{"unknown type", func(c *config.Config) { c.Auth.Type = "ldap" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			tt.setup(&cfg)
			if _, err := buildAuth(&cfg); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
