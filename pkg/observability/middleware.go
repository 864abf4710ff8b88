package observability

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MetricsMiddleware counts requests by method, status class and route,
// observes their duration, and tracks open SSE and WebSocket streams.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isStreaming(r) {
			StreamingConnections.Inc()
			defer StreamingConnections.Dec()
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		route := Route(r.URL.Path)
		RequestsTotal.WithLabelValues(r.Method, rec.class(), route).Inc()
		RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

var fixedRoutes = map[string]bool{
	"/generate": true, "/v1/generate": true, "/v1/runs": true,
	"/healthz": true, "/readyz": true, "/metrics": true, "/mcp": true,
}

// Route maps a request path onto a small label set so that IDs in paths
// do not explode metric cardinality.
func Route(path string) string {
	switch {
	case fixedRoutes[path]:
		return path
	case strings.HasPrefix(path, "/v1/runs/"):
		return "/v1/runs/{id}"
	case strings.HasPrefix(path, "/v1/tasks/"):
		return "/v1/tasks/{id}"
	}
	return "other"
}

func isStreaming(r *http.Request) bool {
	return r.Header.Get("Accept") == "text/event-stream" ||
		strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// statusRecorder remembers the first status written. A handler that never
// calls WriteHeader answered 200.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) class() string {
	s := w.status
	if s == 0 {
		s = http.StatusOK
	}
	return strconv.Itoa(s/100) + "xx"
}

func (w *statusRecorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Flush keeps SSE streaming working through the wrapper.
func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack supports WebSocket upgrades, which are recorded as 101.
func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	conn, rw, err := h.Hijack()
	if err == nil && w.status == 0 {
		w.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
