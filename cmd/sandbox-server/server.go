package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rhuss/codinit/pkg/debug"
	"github.com/rhuss/codinit/pkg/sandbox"
	"github.com/rhuss/codinit/pkg/sandbox/remote"
)

const (
	maxRequestBody        = 10 * 1024 * 1024
	defaultTimeout        = 30
	defaultInstallTimeout = 300
)

type sandboxServer struct {
	manager        *sandbox.Manager
	runtimeVersion string
	maxConcurrent  int32
	currentLoad    atomic.Int32
	outputDirName  string
	startTime      time.Time
}

func newSandboxServer(manager *sandbox.Manager, maxConcurrent int, outputDirName string) *sandboxServer {
	return &sandboxServer{
		manager:        manager,
		runtimeVersion: "unknown",
		maxConcurrent:  int32(maxConcurrent),
		outputDirName:  outputDirName,
		startTime:      time.Now(),
	}
}

func (s *sandboxServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /execute", s.handleExecute)
	mux.HandleFunc("POST /install", s.handleInstall)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// --- Execute handler ---

// acquireSlot writes a 429 and returns false when every slot is taken. The
// caller must call s.releaseSlot when acquireSlot returned true.
func (s *sandboxServer) acquireSlot(w http.ResponseWriter) bool {
	current := s.currentLoad.Add(1)
	if current > s.maxConcurrent {
		s.currentLoad.Add(-1)
		writeError(w, http.StatusTooManyRequests,
			fmt.Sprintf("at capacity (%d/%d concurrent executions)", current, s.maxConcurrent))
		return false
	}
	return true
}

func (s *sandboxServer) releaseSlot() { s.currentLoad.Add(-1) }

func (s *sandboxServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	if !s.acquireSlot(w) {
		return
	}
	defer s.releaseSlot()

	var req remote.ExecuteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if req.TimeoutSeconds <= 0 {
		req.TimeoutSeconds = defaultTimeout
	}
	timeout := time.Duration(req.TimeoutSeconds) * time.Second

	slog.Info("execute request",
		"code", debug.Truncate(req.Code, 120),
		"timeout", req.TimeoutSeconds,
		"requirements", len(req.Requirements),
		"files", len(req.Files),
	)

	ctx := r.Context()
	env, err := s.manager.CreateEnvironment(ctx, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer s.manager.Remove(env)

	outputDir := filepath.Join(env.Root, s.outputDirName)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create output dir: "+err.Error())
		return
	}

	for name, b64Content := range req.Files {
		content, err := base64.StdEncoding.DecodeString(b64Content)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode file %q: %v", name, err))
			return
		}
		// Base name only; no path traversal.
		if err := os.WriteFile(filepath.Join(env.Root, filepath.Base(name)), content, 0o644); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to write file %q: %v", name, err))
			return
		}
	}

	// A failed install is reported alongside the run; the code may not
	// need the missing package.
	installed := s.install(ctx, env, req.Requirements, timeout)

	res, err := s.manager.WriteAndRun(ctx, env, s.manager.NewCodeUnit(env), req.Code, timeout)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "execution failed: "+err.Error())
		return
	}

	resp := remote.ExecuteResponse{
		Status:          statusOf(res.Kind),
		Stdout:          res.Stdout,
		Stderr:          res.Stderr,
		ExitCode:        res.ExitCode,
		ExecutionTimeMs: res.Duration.Milliseconds(),
		FilesProduced:   collectOutputFiles(outputDir),
	}
	if installed.Failed() {
		resp.Stderr = installFailure(installed) + "\n" + resp.Stderr
	}

	slog.Info("execute complete",
		"status", resp.Status,
		"exit_code", resp.ExitCode,
		"duration_ms", resp.ExecutionTimeMs,
		"stdout", debug.Truncate(resp.Stdout, 200),
		"files_produced", len(resp.FilesProduced),
	)
	writeJSON(w, resp)
}

// install registers and installs requirements. Registration and installer
// errors come back as a failed Result.
func (s *sandboxServer) install(ctx context.Context, env *sandbox.Environment, requirements []string, timeout time.Duration) sandbox.Result {
	if len(requirements) == 0 {
		return sandbox.Result{Kind: sandbox.Success}
	}
	for _, dep := range requirements {
		if err := s.manager.AddDependency(env, dep); err != nil {
			return sandbox.Result{Kind: sandbox.Failure, ExitCode: -1, Stderr: err.Error()}
		}
	}

	installCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := s.manager.InstallDependencies(installCtx, env)
	if err != nil {
		return sandbox.Result{Kind: sandbox.Failure, ExitCode: -1, Stderr: err.Error()}
	}
	if res.Failed() {
		slog.Warn("package installation failed", "requirements", requirements, "stderr", debug.Truncate(res.Stderr, 200))
	}
	return res
}

func installFailure(res sandbox.Result) string {
	return "package installation failed: " + res.Stderr
}

// handleInstall installs requirements into a throwaway environment and
// reports the installer's outcome.
func (s *sandboxServer) handleInstall(w http.ResponseWriter, r *http.Request) {
	if !s.acquireSlot(w) {
		return
	}
	defer s.releaseSlot()

	var req remote.InstallRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.TimeoutSeconds <= 0 {
		req.TimeoutSeconds = defaultInstallTimeout
	}

	ctx := r.Context()
	env, err := s.manager.CreateEnvironment(ctx, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer s.manager.Remove(env)

	res := s.install(ctx, env, req.Requirements, time.Duration(req.TimeoutSeconds)*time.Second)
	resp := remote.ExecuteResponse{
		Status:          statusOf(res.Kind),
		Stdout:          res.Stdout,
		Stderr:          res.Stderr,
		ExitCode:        res.ExitCode,
		ExecutionTimeMs: res.Duration.Milliseconds(),
	}
	if res.Failed() {
		resp.Stderr = installFailure(res)
	}
	slog.Info("install complete", "requirements", len(req.Requirements), "status", resp.Status)
	writeJSON(w, resp)
}

func statusOf(k sandbox.Kind) string {
	switch k {
	case sandbox.Success:
		return remote.StatusSuccess
	case sandbox.Timeout:
		return remote.StatusTimeout
	default:
		return remote.StatusError
	}
}

// collectOutputFiles reads files from the output directory and encodes them as base64.
func collectOutputFiles(outputDir string) map[string]string {
	entries, err := os.ReadDir(outputDir)
	if err != nil || len(entries) == 0 {
		return nil
	}

	files := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outputDir, entry.Name()))
		if err != nil {
			continue
		}
		files[entry.Name()] = base64.StdEncoding.EncodeToString(content)
	}

	if len(files) == 0 {
		return nil
	}
	return files
}

// --- Health handler ---

type healthResponse struct {
	Status         string `json:"status"`
	RuntimeVersion string `json:"runtime_version"`
	Capacity       int    `json:"capacity"`
	CurrentLoad    int    `json:"current_load"`
	UptimeSecs     int64  `json:"uptime_seconds"`
}

func (s *sandboxServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, healthResponse{
		Status:         "healthy",
		RuntimeVersion: s.runtimeVersion,
		Capacity:       int(s.maxConcurrent),
		CurrentLoad:    int(s.currentLoad.Load()),
		UptimeSecs:     int64(time.Since(s.startTime).Seconds()),
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
