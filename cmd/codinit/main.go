// Command codinit generates Python programs with a language model and
// repairs them until they lint and run.
//
// Subcommands:
//
//	serve   - HTTP, SSE and WebSocket API plus the MCP endpoint
//	run     - solve a list of tasks and record them as one run
//	scrape  - crawl documentation into the vector store
//	report  - print recorded runs
//	mcp     - MCP server on stdio or streamable HTTP
//
// Configuration comes from a YAML or TOML file (--config), CODINIT_*
// environment variables and built-in defaults.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("codinit failed", "error", err)
		stop()
		os.Exit(1)
	}
}
