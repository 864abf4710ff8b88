package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	"github.com/rhuss/codinit/pkg/auth"
	"github.com/rhuss/codinit/pkg/auth/apikey"
	"github.com/rhuss/codinit/pkg/auth/jwt"
	"github.com/rhuss/codinit/pkg/config"
	"github.com/rhuss/codinit/pkg/engine"
	"github.com/rhuss/codinit/pkg/imports"
	"github.com/rhuss/codinit/pkg/lint"
	"github.com/rhuss/codinit/pkg/provider"
	"github.com/rhuss/codinit/pkg/provider/openai"
	"github.com/rhuss/codinit/pkg/retrieval"
	mcpretrieval "github.com/rhuss/codinit/pkg/retrieval/mcp"
	wvretrieval "github.com/rhuss/codinit/pkg/retrieval/weaviate"
	"github.com/rhuss/codinit/pkg/sandbox"
	k8ssandbox "github.com/rhuss/codinit/pkg/sandbox/kubernetes"
	"github.com/rhuss/codinit/pkg/sandbox/remote"
	"github.com/rhuss/codinit/pkg/storage"
	"github.com/rhuss/codinit/pkg/storage/jsonfile"
	"github.com/rhuss/codinit/pkg/storage/memory"
	"github.com/rhuss/codinit/pkg/storage/postgres"
	"github.com/rhuss/codinit/pkg/storage/sqlite"
)

// symbolLookupK is the number of import names returned per symbol query.
const symbolLookupK = 5

// cleanups collects release functions run in reverse order.
type cleanups []func()

func (c *cleanups) add(f func()) { *c = append(*c, f) }

func (c cleanups) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// openStore opens the run store selected by cfg.
func openStore(ctx context.Context, cfg config.StorageConfig) (storage.RunStore, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.New(cfg.MaxSize), nil
	case "postgres":
		return postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
	case "sqlite":
		return sqlite.New(ctx, cfg.Path)
	case "jsonfile":
		return jsonfile.New(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// newOpenAI returns the client for the default model.
func newOpenAI(cfg config.ProviderConfig) *openai.Client {
	return openai.New(openai.Config{
		BaseURL:        cfg.BaseURL,
		APIKey:         cfg.APIKey,
		Model:          cfg.Model,
		EmbeddingModel: cfg.Embedding,
		Timeout:        cfg.Timeout,
	})
}

// buildGenerator wires the model client, per-role model overrides and
// retries into a provider.Generator.
func buildGenerator(cfg *config.Config, client *openai.Client) (provider.Generator, error) {
	opts := []provider.AdapterOption{
		provider.WithTemperatures(provider.TemperaturesFrom(cfg.Executor)),
	}
	for name, model := range cfg.Provider.Models {
		role := provider.Role(name)
		if !role.Valid() {
			return nil, fmt.Errorf("provider.models: unknown role %q", name)
		}
		opts = append(opts, provider.WithRoleCompleter(role, client.WithModel(model)))
	}

	adapter, err := provider.NewTextAdapter(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating text adapter: %w", err)
	}
	return provider.WithRetry(adapter, provider.RetryOptions{
		MaxRetries: cfg.Provider.MaxRetries,
		Timeout:    cfg.Provider.Timeout,
	}), nil
}

// buildSandbox returns the manager that runs generated programs, backed by
// a local subprocess, a fixed sandbox server or claimed sandbox pods.
func buildSandbox(cfg config.SandboxConfig, logger *slog.Logger) (*sandbox.Manager, error) {
	opts := sandbox.Options{
		BasePath:    cfg.BasePath,
		Isolation:   sandbox.Isolation(cfg.Isolation),
		Interpreter: cfg.Interpreter,
		FileName:    cfg.FileName,
	}

	var runner sandbox.Runner
	switch cfg.Mode {
	case "local", "":
		runner = &sandbox.LocalRunner{InstallArgs: cfg.InstallArgs, MaxOutput: cfg.MaxOutputLen}
	case "remote":
		runner = remote.NewRunner(remote.StaticAcquirer{URL: cfg.RemoteURL})
		opts.Isolation = sandbox.IsolationNone
	case "kubernetes":
		c, err := kubeClient()
		if err != nil {
			return nil, err
		}
		k := cfg.Kubernetes
		runner = remote.NewRunner(k8ssandbox.NewClaimAcquirer(c, k.Template, k.Namespace, k.ClaimTimeout))
		// The pod owns the interpreter; locally only the file layout is kept.
		opts.Isolation = sandbox.IsolationNone
	default:
		return nil, fmt.Errorf("unknown sandbox mode %q", cfg.Mode)
	}
	return sandbox.NewManager(opts, runner, sandbox.WithLogger(logger)), nil
}

func kubeClient() (client.Client, error) {
	restCfg, err := ctrlconfig.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("loading kubeconfig: %w", err)
	}
	scheme, err := k8ssandbox.NewScheme()
	if err != nil {
		return nil, err
	}
	c, err := client.New(restCfg, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes client: %w", err)
	}
	return c, nil
}

// buildRetrieval returns the documentation retriever and the symbol lookup.
func buildRetrieval(cfg config.RetrievalConfig, embedder provider.Embedder, cl *cleanups) (retrieval.Retriever, retrieval.SymbolLookup, error) {
	var (
		docs    retrieval.Retriever    = retrieval.Nop{}
		symbols retrieval.SymbolLookup = retrieval.Nop{}
	)

	w := cfg.Weaviate
	if cfg.Backend == "weaviate" || cfg.SymbolBackend == "weaviate" {
		wc, err := wvretrieval.NewClient(w.URL)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Backend == "weaviate" {
			docs = wvretrieval.NewDocRetriever(wc, wvretrieval.DocOptions{
				Class:    w.Class,
				TextKey:  w.TextKey,
				K:        w.K,
				Alpha:    w.Alpha,
				Embedder: embedder,
			})
		}
		if cfg.SymbolBackend == "weaviate" {
			symbols = wvretrieval.NewSymbolIndex(wc, w.SymbolClass, symbolLookupK)
		}
	}

	if cfg.SymbolBackend == "mcp" {
		lookup := mcpretrieval.New(cfg.MCP)
		cl.add(func() {
			if err := lookup.Close(); err != nil {
				slog.Warn("closing symbol lookup session", "error", err)
			}
		})
		symbols = lookup
	}
	return docs, symbols, nil
}

// buildEngine assembles the task pipeline from the configuration.
func buildEngine(cfg *config.Config, store storage.RunStore, gitSHA, commitMessage string, cl *cleanups) (*engine.Engine, error) {
	logger := slog.Default()
	client := newOpenAI(cfg.Provider)

	gen, err := buildGenerator(cfg, client)
	if err != nil {
		return nil, err
	}
	sb, err := buildSandbox(cfg.Sandbox, logger)
	if err != nil {
		return nil, err
	}
	docs, symbols, err := buildRetrieval(cfg.Retrieval, client, cl)
	if err != nil {
		return nil, err
	}

	var sorter imports.Sorter = imports.CanonicalSorter{}
	if cfg.Imports.Sorter == "isort" {
		sorter = imports.ExternalSorter{Path: cfg.Imports.IsortPath}
	}

	opts := []engine.Option{engine.WithRunInfo(gitSHA, commitMessage)}
	if store != nil {
		opts = append(opts, engine.WithStore(store))
	}
	return engine.New(engine.Components{
		Generator:  gen,
		Normalizer: imports.New(sorter),
		Validator:  lint.NewValidator(cfg.Lint.Binary),
		Sandbox:    sb,
		Retriever:  docs,
		Symbols:    symbols,
		Logger:     logger,
	}, cfg.Executor, opts...)
}

// buildAuth returns the authentication middleware for the HTTP API.
func buildAuth(cfg *config.Config) (func(http.Handler) http.Handler, error) {
	var chain *auth.AuthChain
	switch cfg.Auth.Type {
	case "none", "":
		chain = &auth.AuthChain{DefaultDecision: auth.Yes}
	case "apikey":
		keys := make([]apikey.RawKeyEntry, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			keys = append(keys, apikey.RawKeyEntry{Key: k.Key, Subject: k.Subject, TenantID: k.TenantID})
		}
		a := apikey.New(keys)
		if a.Len() == 0 {
			return nil, fmt.Errorf("auth.type is \"apikey\" but no keys are configured")
		}
		chain = auth.NewChain(a)
	case "jwt":
		a, err := jwt.New(jwt.Config{
			Secret:      []byte(cfg.Auth.JWT.Secret),
			Issuer:      cfg.Auth.JWT.Issuer,
			Audience:    cfg.Auth.JWT.Audience,
			TenantClaim: cfg.Auth.JWT.TenantClaim,
		})
		if err != nil {
			return nil, err
		}
		chain = auth.NewChain(a)
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Auth.Type)
	}

	var limiter auth.RateLimiter
	if rl := cfg.Auth.RateLimit; rl.RequestsPerSecond > 0 {
		limiter = auth.NewSubjectLimiter(rl.RequestsPerSecond, rl.Burst)
	}

	bypass := append([]string{}, auth.DefaultBypassEndpoints...)
	if m := cfg.Observability.Metrics; m.Enabled && m.Path != "" {
		bypass = append(bypass, m.Path)
	}
	return auth.Middleware(chain, limiter, bypass), nil
}
