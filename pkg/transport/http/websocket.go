package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/auth"
	"github.com/rhuss/codinit/pkg/debug"
	"github.com/rhuss/codinit/pkg/transport"
)

// wsQueueSize bounds the tasks a client may send ahead of the running one.
const wsQueueSize = 8

// wsMessageWriter implements transport.MessageWriter for one task on a
// WebSocket connection. Writers of the same connection share mu.
type wsMessageWriter struct {
	conn         *websocket.Conn
	mu           *sync.Mutex
	writeTimeout time.Duration
	final        bool
}

var _ transport.MessageWriter = (*wsMessageWriter)(nil)

// WriteMessage sends msg as one JSON text frame.
func (w *wsMessageWriter) WriteMessage(_ context.Context, msg api.StreamMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.final {
		return transport.ErrStreamClosed
	}
	if err := writeFrame(w.conn, w.writeTimeout, msg); err != nil {
		return err
	}
	w.final = msg.IsFinal
	return nil
}

// Flush is a no-op: every frame is written as a whole.
func (w *wsMessageWriter) Flush() error { return nil }

func (w *wsMessageWriter) finished() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.final
}

func writeFrame(conn *websocket.Conn, timeout time.Duration, v any) error {
	if timeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return conn.WriteJSON(v)
}

// handleWebSocket handles GET /generate. Every text frame the client sends
// is one task; tasks on a connection run one after the other and the
// connection stays open between them. A closed connection cancels the
// running task.
func (a *Adapter) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(a.config.MaxBodySize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	debug.Log("transport", "websocket client connected", "remote_addr", r.RemoteAddr, "subject", auth.Subject(ctx))

	var mu sync.Mutex
	inbox := make(chan []byte, wsQueueSize)

	go func() {
		defer cancel()
		defer close(inbox)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					a.logger.Warn("websocket read failed", "error", err)
				}
				debug.Log("transport", "websocket client disconnected", "remote_addr", r.RemoteAddr)
				return
			}
			select {
			case inbox <- data:
			default:
				mu.Lock()
				writeFrame(conn, a.config.WriteTimeout, api.StreamMessage{
					Error:   "too many queued tasks on this connection",
					IsFinal: true,
				})
				mu.Unlock()
			}
		}
	}()

	for data := range inbox {
		if ctx.Err() != nil {
			return
		}
		a.runWebSocketTask(ctx, conn, &mu, data)
	}
}

func (a *Adapter) runWebSocketTask(ctx context.Context, conn *websocket.Conn, mu *sync.Mutex, data []byte) {
	mw := &wsMessageWriter{conn: conn, mu: mu, writeTimeout: a.config.WriteTimeout}

	var req api.TaskRequest
	if err := json.Unmarshal(data, &req); err != nil {
		mw.WriteMessage(ctx, api.StreamMessage{Error: "invalid JSON: " + err.Error(), IsFinal: true})
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	id := transport.NewRequestID()
	taskCtx = transport.ContextWithRequestID(taskCtx, id)
	a.inflight.Register(id, cancel)
	defer a.inflight.Remove(id)

	err := a.runner.RunTask(taskCtx, &req, mw)
	if err == nil || mw.finished() || ctx.Err() != nil {
		return
	}
	apiErr := transport.AsAPIError(err)
	if werr := mw.WriteMessage(ctx, api.StreamMessage{Error: apiErr.Message, IsFinal: true}); werr != nil && !errors.Is(werr, transport.ErrStreamClosed) {
		a.logger.Warn("failed to write error message", "request_id", id, "error", werr)
	}
}
