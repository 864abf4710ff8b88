package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	transportmcp "github.com/rhuss/codinit/pkg/transport/mcp"
)

func newMCPCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the generate_code tool over MCP",
		Long: `Serve the generate_code tool over MCP. Without --addr the server speaks
on stdin and stdout, so it can be launched by an MCP client. With --addr it
serves streamable HTTP at /mcp.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.mcp(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address for streamable HTTP")
	return cmd
}

func (a *app) mcp(ctx context.Context, addr string) error {
	var cl cleanups
	defer cl.run()

	store, err := openStore(ctx, a.cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", a.cfg.Storage.Type, err)
	}
	cl.add(func() { store.Close() })

	sha, msg := gitInfo(ctx)
	eng, err := buildEngine(a.cfg, store, sha, msg, &cl)
	if err != nil {
		return err
	}
	s := transportmcp.NewServer(eng, version)

	if addr == "" {
		slog.Info("mcp server on stdio")
		return s.MCPServer().Run(ctx, &mcp.StdioTransport{})
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", s.Handler())
	srv := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: a.cfg.Server.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("mcp server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
