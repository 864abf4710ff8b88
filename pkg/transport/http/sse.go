package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/transport"
)

// sseMessageWriter streams StreamMessages as server-sent events. Each
// message is one "message" event. The final one is followed by a
// "data: [DONE]" sentinel and the writer refuses further messages.
type sseMessageWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu      sync.Mutex
	started bool
	done    bool
}

var _ transport.MessageWriter = (*sseMessageWriter)(nil)

func newSSEMessageWriter(w http.ResponseWriter) *sseMessageWriter {
	return &sseMessageWriter{w: w, rc: http.NewResponseController(w)}
}

func (s *sseMessageWriter) WriteMessage(_ context.Context, msg api.StreamMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return transport.ErrStreamClosed
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding stream message: %w", err)
	}
	var ev bytes.Buffer
	ev.WriteString("event: message\ndata: ")
	ev.Write(data)
	ev.WriteString("\n\n")
	if msg.IsFinal {
		ev.WriteString("data: [DONE]\n\n")
	}

	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		s.started = true
	}
	if _, err := s.w.Write(ev.Bytes()); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	s.done = msg.IsFinal
	return s.rc.Flush()
}

func (s *sseMessageWriter) Flush() error {
	return s.rc.Flush()
}

// hasStarted reports whether headers went out, after which errors can only
// be reported in-band.
func (s *sseMessageWriter) hasStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *sseMessageWriter) completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
