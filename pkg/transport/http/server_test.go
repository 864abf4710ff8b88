package http

import (
	"context"
	"io"
	"net"
	gohttp "net/http"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/transport"
)

func startServer(t *testing.T, srv *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	go srv.ServeOn(ln)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	time.Sleep(50 * time.Millisecond)
	return "http://" + ln.Addr().String()
}

func TestServerStartsAndAcceptsRequests(t *testing.T) {
	srv := NewServer(&mockRunner{messages: happyMessages()}, nil, WithAddr("127.0.0.1:0"))
	base := startServer(t, srv)

	resp, err := gohttp.Post(base+"/v1/generate", "application/json", strings.NewReader(`{"task":"say hi"}`))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != gohttp.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, gohttp.StatusOK)
	}
	data, _ := io.ReadAll(resp.Body)
	if !strings.HasSuffix(string(data), "data: [DONE]\n\n") {
		t.Errorf("stream did not end with [DONE]:\n%s", data)
	}
}

func TestServerExposesMetrics(t *testing.T) {
	srv := NewServer(&mockRunner{}, nil)
	base := startServer(t, srv)

	resp, err := gohttp.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	resp.Body.Close()

	resp, err = gohttp.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), `codinit_requests_total{method="GET",route="/healthz",status="2xx"}`) {
		t.Errorf("metrics missing the healthz request:\n%s", data)
	}
}

func TestServerMetricsDisabled(t *testing.T) {
	srv := NewServer(&mockRunner{}, nil, WithMetricsPath(""))
	base := startServer(t, srv)

	resp, err := gohttp.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != gohttp.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, gohttp.StatusNotFound)
	}
}

func TestServerHTTPMiddlewareAndMounts(t *testing.T) {
	var order []string
	mark := func(name string) func(gohttp.Handler) gohttp.Handler {
		return func(next gohttp.Handler) gohttp.Handler {
			return gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	extra := gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		w.Write([]byte("mounted"))
	})

	srv := NewServer(&mockRunner{}, nil,
		WithHTTPMiddleware(mark("outer"), mark("inner")),
		WithMount("/mcp", extra),
	)
	base := startServer(t, srv)

	resp, err := gohttp.Get(base + "/mcp")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "mounted" {
		t.Errorf("body = %q, want %q", data, "mounted")
	}
	if strings.Join(order, ",") != "outer,inner" {
		t.Errorf("middleware order = %v, want [outer inner]", order)
	}
}

func TestServerRecoversFromPanics(t *testing.T) {
	panicking := transport.TaskRunnerFunc(func(ctx context.Context, req *api.TaskRequest, w transport.MessageWriter) error {
		panic("boom")
	})
	srv := NewServer(panicking, nil)
	base := startServer(t, srv)

	resp, err := gohttp.Post(base+"/v1/generate", "application/json", strings.NewReader(`{"task":"x"}`))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != gohttp.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, gohttp.StatusInternalServerError)
	}
}

func TestServerGracefulShutdown(t *testing.T) {
	slowRunner := transport.TaskRunnerFunc(func(ctx context.Context, req *api.TaskRequest, w transport.MessageWriter) error {
		select {
		case <-time.After(200 * time.Millisecond):
			return w.WriteMessage(ctx, api.StreamMessage{Code: "print(1)", IsFinal: true})
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	srv := NewServer(slowRunner, nil,
		WithAddr("127.0.0.1:0"),
		WithShutdownTimeout(5*time.Second),
	)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	addr := ln.Addr().String()

	go srv.ServeOn(ln)
	time.Sleep(50 * time.Millisecond)

	responseCh := make(chan int, 1)
	go func() {
		resp, err := gohttp.Post("http://"+addr+"/v1/generate", "application/json", strings.NewReader(`{"task":"slow"}`))
		if err != nil {
			responseCh <- 0
			return
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		responseCh <- resp.StatusCode
	}()

	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)

	status := <-responseCh
	if status != gohttp.StatusOK {
		t.Errorf("slow request status = %d, want %d", status, gohttp.StatusOK)
	}
}

func TestServerFunctionalOptions(t *testing.T) {
	srv := NewServer(&mockRunner{}, nil,
		WithAddr(":9999"),
		WithMaxBodySize(1024),
		WithShutdownTimeout(10*time.Second),
		WithTimeouts(5*time.Second, 0),
	)

	if srv.config.Addr != ":9999" {
		t.Errorf("addr = %q, want %q", srv.config.Addr, ":9999")
	}
	if srv.config.MaxBodySize != 1024 {
		t.Errorf("max body size = %d, want %d", srv.config.MaxBodySize, 1024)
	}
	if srv.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown timeout = %v, want %v", srv.config.ShutdownTimeout, 10*time.Second)
	}
	if srv.httpServer.ReadTimeout != 5*time.Second || srv.httpServer.WriteTimeout != 0 {
		t.Errorf("timeouts = %v/%v, want 5s/0", srv.httpServer.ReadTimeout, srv.httpServer.WriteTimeout)
	}
	if srv.Adapter().config.MaxBodySize != 1024 {
		t.Errorf("adapter max body size = %d, want 1024", srv.Adapter().config.MaxBodySize)
	}
}
