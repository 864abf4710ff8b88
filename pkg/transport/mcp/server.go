// Package mcp exposes code generation as an MCP tool. The server speaks
// streamable HTTP and can also run on any other MCP transport.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/debug"
	"github.com/rhuss/codinit/pkg/engine"
	"github.com/rhuss/codinit/pkg/transport"
)

// ToolName is the name of the code generation tool.
const ToolName = "generate_code"

// Generator solves a task and returns its log. *engine.Engine implements it.
type Generator interface {
	Generate(ctx context.Context, req *api.TaskRequest, emit engine.Emitter) (*api.TaskLog, error)
}

var _ Generator = (*engine.Engine)(nil)

// GenerateInput is the argument of the generate_code tool.
type GenerateInput struct {
	Task      string   `json:"task" jsonschema:"what the Python program should do"`
	Libraries []string `json:"libraries,omitempty" jsonschema:"libraries the program may use"`
}

// GenerateOutput is the structured result of the generate_code tool.
type GenerateOutput struct {
	Code      string   `json:"code"`
	Succeeded bool     `json:"succeeded"`
	Output    string   `json:"output,omitempty"`
	Plan      []string `json:"plan,omitempty"`
	Attempts  int      `json:"attempts"`
	Metric    int      `json:"metric"`
}

// Server serves the generate_code tool.
type Server struct {
	gen    Generator
	server *mcp.Server
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates an MCP server with the generate_code tool registered.
func NewServer(gen Generator, version string, opts ...Option) *Server {
	s := &Server{gen: gen, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	s.server = mcp.NewServer(&mcp.Implementation{Name: "codinit", Version: version}, nil)
	mcp.AddTool(s.server, &mcp.Tool{
		Name: ToolName,
		Description: "Writes a Python program for the task, then lints, runs and corrects it " +
			"until it works or the attempts are used up. Returns the final code and whether it ran.",
	}, s.generate)

	return s
}

// MCPServer returns the underlying MCP server, e.g. to run it on a custom
// transport.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// Handler returns the streamable HTTP handler. Mount it at /mcp.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

func (s *Server) generate(ctx context.Context, _ *mcp.CallToolRequest, in GenerateInput) (*mcp.CallToolResult, GenerateOutput, error) {
	req := &api.TaskRequest{Task: in.Task, Libraries: in.Libraries}
	requestID := transport.NewRequestID()
	ctx = transport.ContextWithRequestID(ctx, requestID)
	start := time.Now()

	var messages int
	log, err := s.gen.Generate(ctx, req, func(context.Context, api.StreamMessage) { messages++ })

	attrs := []any{
		"request_id", requestID,
		"task", debug.Truncate(req.Text(), 80),
		"libraries", len(req.Libraries),
		"duration", time.Since(start),
	}
	if err != nil {
		s.logger.Error("mcp task failed", append(attrs, "error", err)...)
		apiErr := transport.AsAPIError(err)
		return errorResult(apiErr.Message), GenerateOutput{}, nil
	}
	s.logger.Info("mcp task completed", append(attrs, "succeeded", log.Succeeded)...)
	debug.Log("transport", "mcp task messages", "request_id", requestID, "messages", messages)

	out := GenerateOutput{
		Code:      log.FinalCode,
		Succeeded: log.Succeeded,
		Output:    log.FinalError,
		Plan:      log.InitialCode.GeneratedPlan.Plan,
		Attempts:  len(log.GenerationAttempts),
		Metric:    log.Metric,
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: renderResult(out)}},
	}, out, nil
}

func renderResult(out GenerateOutput) string {
	var b strings.Builder
	if out.Succeeded {
		b.WriteString("The program ran successfully.\n\n")
	} else {
		b.WriteString("The program still fails after all attempts.\n\n")
	}
	b.WriteString("```python\n")
	b.WriteString(out.Code)
	if !strings.HasSuffix(out.Code, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString("```\n")
	if out.Output != "" {
		b.WriteString("\n")
		b.WriteString(out.Output)
		b.WriteString("\n")
	}
	return b.String()
}

func errorResult(msg string) *mcp.CallToolResult {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
