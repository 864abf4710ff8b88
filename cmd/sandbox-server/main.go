// Command sandbox-server runs an HTTP server, typically inside a sandbox
// pod, that executes Python programs in throwaway environments.
//
// Configuration:
//
//	SANDBOX_PORT           - Listen port (default: 8080)
//	SANDBOX_MAX_CONCURRENT - Max concurrent executions (default: 3)
//	SANDBOX_ISOLATION      - "venv" or "none" (default: venv)
//	SANDBOX_BASE_PATH      - Directory for environments (default: os.TempDir())
//	SANDBOX_INTERPRETER    - Python interpreter (default: python3)
//	SANDBOX_PYTHON_INDEX   - Python package index URL (default: https://pypi.org/simple/)
//	SANDBOX_OUTPUT_DIR     - Output directory name within the environment (default: output)
//	SANDBOX_DEBUG          - Debug categories, e.g. "sandbox" or "all"
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/codinit/pkg/debug"
	"github.com/rhuss/codinit/pkg/sandbox"
)

func main() {
	port := envOr("SANDBOX_PORT", "8080")
	maxConcurrent := envOrInt("SANDBOX_MAX_CONCURRENT", 3)
	interpreter := envOr("SANDBOX_INTERPRETER", "python3")
	pythonIndex := envOr("SANDBOX_PYTHON_INDEX", "https://pypi.org/simple/")

	debug.Init(os.Getenv("SANDBOX_DEBUG"), "info", nil)

	if _, err := exec.LookPath(interpreter); err != nil {
		slog.Error("python interpreter not found in PATH", "interpreter", interpreter)
		os.Exit(1)
	}

	runner := &sandbox.LocalRunner{
		InstallArgs: append(append([]string{}, sandbox.DefaultInstallArgs...), "--index-url", pythonIndex),
	}
	manager := sandbox.NewManager(sandbox.Options{
		BasePath:    envOr("SANDBOX_BASE_PATH", os.TempDir()),
		Isolation:   sandbox.Isolation(envOr("SANDBOX_ISOLATION", string(sandbox.IsolationVenv))),
		Interpreter: interpreter,
	}, runner)

	srv := newSandboxServer(manager, maxConcurrent, envOr("SANDBOX_OUTPUT_DIR", "output"))
	srv.runtimeVersion = detectRuntimeVersion(interpreter)

	mux := srv.routes()
	mux.Handle("GET /metrics", promhttp.Handler())

	httpSrv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // installs and runs share one request
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("sandbox server starting", "port", port, "runtime", srv.runtimeVersion, "max_concurrent", maxConcurrent)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx)
}

// detectRuntimeVersion returns the interpreter's version line.
func detectRuntimeVersion(interpreter string) string {
	output, err := exec.Command(interpreter, "--version").Output()
	if err != nil {
		return "unknown"
	}
	version := strings.TrimSpace(string(output))
	if idx := strings.Index(version, "\n"); idx > 0 {
		version = version[:idx]
	}
	return version
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
