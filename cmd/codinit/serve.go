package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	transporthttp "github.com/rhuss/codinit/pkg/transport/http"
	transportmcp "github.com/rhuss/codinit/pkg/transport/mcp"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the code generation API",
		Long: `Serve the code generation API:

  POST /v1/generate   SSE stream of one task
  GET  /generate      WebSocket, one task per message
  /v1/runs            recorded runs
  /mcp                MCP streamable HTTP endpoint`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default \":<server.port>\")")
	return cmd
}

func (a *app) serve(cmd *cobra.Command, addr string) error {
	ctx := cmd.Context()
	cfg := a.cfg
	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.Server.Port)
	}

	var cl cleanups
	defer cl.run()

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Storage.Type, err)
	}
	cl.add(func() { store.Close() })

	sha, msg := gitInfo(ctx)
	eng, err := buildEngine(cfg, store, sha, msg, &cl)
	if err != nil {
		return err
	}

	authMW, err := buildAuth(cfg)
	if err != nil {
		return err
	}

	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}

	mcpServer := transportmcp.NewServer(eng, version)
	srv := transporthttp.NewServer(eng, store,
		transporthttp.WithAddr(addr),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithMetricsPath(metricsPath),
		transporthttp.WithHTTPMiddleware(authMW),
		transporthttp.WithMount("/mcp", mcpServer.Handler()),
	)

	slog.Info("serving code generation",
		"model", cfg.Provider.Model,
		"sandbox", cfg.Sandbox.Mode,
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
		"retrieval", cfg.Retrieval.Backend,
	)
	return srv.ListenAndServeContext(ctx)
}
