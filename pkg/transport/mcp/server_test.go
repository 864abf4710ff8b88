package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/engine"
	"github.com/rhuss/codinit/pkg/transport"
)

type fakeGenerator struct {
	log *api.TaskLog
	err error

	got          *api.TaskRequest
	gotRequestID string
}

func (f *fakeGenerator) Generate(ctx context.Context, req *api.TaskRequest, emit engine.Emitter) (*api.TaskLog, error) {
	f.got = req
	f.gotRequestID = transport.RequestIDFromContext(ctx)
	if f.err != nil {
		return nil, f.err
	}
	emit(ctx, api.StreamMessage{Plan: "1. step"})
	emit(ctx, api.StreamMessage{Code: f.log.FinalCode, IsFinal: true})
	return f.log, nil
}

func succeededLog() *api.TaskLog {
	return &api.TaskLog{
		Task:               "print hello",
		Metric:             2,
		InitialCode:        api.InitialCode{GeneratedPlan: api.GeneratedPlan{Plan: []string{"print the greeting"}}},
		GenerationAttempts: []api.GenerationAttempt{{GenerationID: 0}, {GenerationID: 1}},
		Succeeded:          true,
		FinalCode:          "print('hello')",
		FinalError:         "Task Success: Program Succeeded\nStdout:hello\nStderr:",
	}
}

func connect(t *testing.T, gen Generator) *mcp.ClientSession {
	t.Helper()
	s := NewServer(gen, "test")

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() {
		_ = s.MCPServer().Run(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func callGenerate(t *testing.T, cs *mcp.ClientSession, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: ToolName, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	return res
}

func text(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func TestListTools(t *testing.T) {
	cs := connect(t, &fakeGenerator{log: succeededLog()})

	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(res.Tools) != 1 || res.Tools[0].Name != ToolName {
		t.Fatalf("got tools %+v, want only %s", res.Tools, ToolName)
	}

	schema, err := json.Marshal(res.Tools[0].InputSchema)
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	var parsed struct {
		Required   []string       `json:"required"`
		Properties map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(schema, &parsed); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}
	if strings.Join(parsed.Required, ",") != "task" {
		t.Errorf("required = %v, want [task]", parsed.Required)
	}
	if _, ok := parsed.Properties["libraries"]; !ok {
		t.Error("schema has no libraries property")
	}
}

func TestGenerateCode(t *testing.T) {
	gen := &fakeGenerator{log: succeededLog()}
	cs := connect(t, gen)

	res := callGenerate(t, cs, map[string]any{"task": "print hello", "libraries": []string{"numpy"}})
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", text(res))
	}

	if gen.got.Task != "print hello" || len(gen.got.Libraries) != 1 || gen.got.Libraries[0] != "numpy" {
		t.Errorf("generator got %+v", gen.got)
	}
	if gen.gotRequestID == "" {
		t.Error("no request ID in the generator context")
	}

	body := text(res)
	for _, want := range []string{"ran successfully", "```python\nprint('hello')\n```", "Stdout:hello"} {
		if !strings.Contains(body, want) {
			t.Errorf("text result missing %q:\n%s", want, body)
		}
	}

	data, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatalf("marshal structured content: %v", err)
	}
	var out GenerateOutput
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal structured content: %v", err)
	}
	if !out.Succeeded || out.Code != "print('hello')" || out.Attempts != 2 || out.Metric != 2 {
		t.Errorf("structured output = %+v", out)
	}
	if len(out.Plan) != 1 || out.Plan[0] != "print the greeting" {
		t.Errorf("plan = %v", out.Plan)
	}
}

func TestGenerateCodeGaveUp(t *testing.T) {
	log := succeededLog()
	log.Succeeded = false
	log.FinalError = "Task Failed: Program Failed\nStdout:\nStderr:NameError"
	cs := connect(t, &fakeGenerator{log: log})

	res := callGenerate(t, cs, map[string]any{"task": "x"})
	if res.IsError {
		t.Fatal("a program that still fails is a result, not a tool error")
	}
	if !strings.Contains(text(res), "still fails") {
		t.Errorf("text result = %q", text(res))
	}
}

func TestGenerateCodeErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"invalid task", api.NewInvalidRequestError("task", "task is required"), "task is required"},
		{"generation", api.NewGenerationError("calling model: retries exhausted"), "retries exhausted"},
		{"plain", errors.New("disk full"), "disk full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := connect(t, &fakeGenerator{err: tt.err})
			res := callGenerate(t, cs, map[string]any{"task": "x"})
			if !res.IsError {
				t.Fatal("expected a tool error")
			}
			if !strings.Contains(text(res), tt.want) {
				t.Errorf("error text = %q, want it to contain %q", text(res), tt.want)
			}
		})
	}
}

func TestStreamableHTTPHandler(t *testing.T) {
	s := NewServer(&fakeGenerator{log: succeededLog()}, "test")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "http-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(context.Background(), &mcp.StreamableClientTransport{Endpoint: srv.URL}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer cs.Close()

	res := callGenerate(t, cs, map[string]any{"task": "print hello"})
	if res.IsError || !strings.Contains(text(res), "print('hello')") {
		t.Errorf("got %q", text(res))
	}
}
