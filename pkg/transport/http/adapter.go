package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/storage"
	"github.com/rhuss/codinit/pkg/transport"
)

// Adapter serves the code generation API over HTTP: the WebSocket and SSE
// streams, the run log endpoints and the health probes.
type Adapter struct {
	runner   transport.TaskRunner
	store    storage.RunStore // nil if runs are not recorded
	inflight *transport.InFlightRegistry
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	config   Config
	logger   *slog.Logger
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	Addr            string
	MaxBodySize     int64
	ShutdownTimeout int           // seconds
	WriteTimeout    time.Duration // per WebSocket frame, 0 disables
	Logger          *slog.Logger
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		MaxBodySize:     10 << 20, // 10 MB
		ShutdownTimeout: 30,
		WriteTimeout:    10 * time.Second,
	}
}

// NewAdapter creates an HTTP adapter for runner. The store is optional;
// when nil, the run endpoints answer 501 and readiness always passes.
// Middleware is applied to the runner in the given order.
func NewAdapter(runner transport.TaskRunner, store storage.RunStore, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		runner = transport.Chain(middlewares...)(runner)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Adapter{
		runner:   runner,
		store:    store,
		inflight: transport.NewInFlightRegistry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 64 << 10,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		mux:    http.NewServeMux(),
		config: cfg,
		logger: logger,
	}

	a.mux.HandleFunc("GET /generate", a.handleWebSocket)
	a.mux.HandleFunc("POST /v1/generate", a.handleGenerate)
	a.mux.HandleFunc("DELETE /v1/tasks/{id}", a.handleCancelTask)
	a.mux.HandleFunc("GET /v1/runs/{id}", a.handleGetRun)
	a.mux.HandleFunc("GET /v1/runs", a.handleListRuns)
	a.mux.HandleFunc("DELETE /v1/runs/{id}", a.handleDeleteRun)
	a.mux.HandleFunc("GET /healthz", a.handleHealth)
	a.mux.HandleFunc("GET /readyz", a.handleReady)

	return a
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. The returned handler includes
// HTTP-level middleware for request ID propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// InFlight returns the registry of running tasks.
func (a *Adapter) InFlight() *transport.InFlightRegistry {
	return a.inflight
}

// httpRequestIDMiddleware propagates the X-Request-ID header. A client
// supplied ID is put into the context; the ID in the context after the
// handler ran is echoed in the response headers.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Request-ID"); id != "" {
			r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
		}
		rw := &requestIDResponseWriter{ResponseWriter: w, r: r}
		next.ServeHTTP(rw, r)
	})
}

// requestIDResponseWriter wraps http.ResponseWriter to inject the
// X-Request-ID header before the first write.
type requestIDResponseWriter struct {
	http.ResponseWriter
	r           *http.Request
	headersSent bool
}

func (w *requestIDResponseWriter) WriteHeader(statusCode int) {
	w.ensureRequestIDHeader()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *requestIDResponseWriter) Write(b []byte) (int, error) {
	w.ensureRequestIDHeader()
	return w.ResponseWriter.Write(b)
}

func (w *requestIDResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets the WebSocket upgrade take over the connection.
func (w *requestIDResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *requestIDResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *requestIDResponseWriter) ensureRequestIDHeader() {
	if w.headersSent {
		return
	}
	w.headersSent = true
	if id := transport.RequestIDFromContext(w.r.Context()); id != "" {
		w.ResponseWriter.Header().Set("X-Request-ID", id)
	}
}

// handleGenerate handles POST /v1/generate and streams the task's progress
// as server-sent events.
func (a *Adapter) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}
	if apiErr := req.Validate(); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id := transport.RequestIDFromContext(ctx)
	if id == "" {
		id = transport.NewRequestID()
		ctx = transport.ContextWithRequestID(ctx, id)
		w.Header().Set("X-Request-ID", id)
	}
	a.inflight.Register(id, cancel)
	defer a.inflight.Remove(id)

	mw := newSSEMessageWriter(w)
	if err := a.runner.RunTask(ctx, &req, mw); err != nil {
		a.writeHandlerError(w, mw, err)
	}
}

// handleCancelTask handles DELETE /v1/tasks/{id}, where id is the request
// ID of a running task.
func (a *Adapter) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.inflight.Cancel(id) {
		transport.WriteAPIError(w, api.NewNotFoundError("task "+id+" is not running"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetRun handles GET /v1/runs/{id}.
func (a *Adapter) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w, "run retrieval") {
		return
	}
	id, ok := runIDParam(w, r)
	if !ok {
		return
	}

	run, err := a.store.GetRun(r.Context(), id)
	if err != nil {
		writeStoreError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleDeleteRun handles DELETE /v1/runs/{id}.
func (a *Adapter) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w, "run deletion") {
		return
	}
	id, ok := runIDParam(w, r)
	if !ok {
		return
	}

	if err := a.store.DeleteRun(r.Context(), id); err != nil {
		writeStoreError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListRuns handles GET /v1/runs.
func (a *Adapter) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w, "run listing") {
		return
	}

	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	list, err := a.store.ListRuns(r.Context(), opts)
	if err != nil {
		transport.WriteAPIError(w, transport.AsAPIError(err))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleHealth handles GET /healthz. It answers as long as the process
// serves HTTP.
func (a *Adapter) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady handles GET /readyz and checks the run store.
func (a *Adapter) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := a.store.HealthCheck(ctx); err != nil {
			a.logger.Warn("readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *Adapter) requireStore(w http.ResponseWriter, what string) bool {
	if a.store != nil {
		return true
	}
	transport.WriteErrorResponse(w,
		api.NewInvalidRequestError("", what+" is not available (no store configured)"),
		http.StatusNotImplemented,
	)
	return false
}

func runIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if !api.ValidateRunID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed run ID"),
			http.StatusBadRequest,
		)
		return "", false
	}
	return id, true
}

func writeStoreError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		transport.WriteAPIError(w, api.NewNotFoundError("run "+id+" not found"))
		return
	}
	transport.WriteAPIError(w, transport.AsAPIError(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// parseListOptions extracts pagination parameters from the query string.
func parseListOptions(r *http.Request) (storage.ListOptions, *api.APIError) {
	q := r.URL.Query()
	opts := storage.ListOptions{
		After: q.Get("after"),
		Order: q.Get("order"),
	}

	if opts.Order != "" && opts.Order != "asc" && opts.Order != "desc" {
		return opts, api.NewInvalidRequestError("order", "order must be 'asc' or 'desc'")
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return opts, api.NewInvalidRequestError("limit", "limit must be a positive integer")
		}
		opts.Limit = limit
	}

	return opts, nil
}

// writeHandlerError reports a runner error. Once streaming has started it
// becomes a final message, unless one was already sent. Otherwise it is
// a JSON error response.
func (a *Adapter) writeHandlerError(w http.ResponseWriter, mw *sseMessageWriter, err error) {
	apiErr := transport.AsAPIError(err)

	if mw.hasStarted() {
		if mw.completed() {
			return
		}
		mw.WriteMessage(context.Background(), api.StreamMessage{Error: apiErr.Message, IsFinal: true})
		return
	}

	transport.WriteAPIError(w, apiErr)
}
