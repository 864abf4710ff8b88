// Package openai implements provider.Completer and provider.Embedder on top
// of the OpenAI Chat Completions and Embeddings APIs, or any compatible
// endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/rhuss/codinit/pkg/provider"
)

var (
	_ provider.Completer = (*Client)(nil)
	_ provider.Embedder  = (*Client)(nil)
	_ provider.Modeler   = (*Client)(nil)
)

// Config holds the client settings.
type Config struct {
	BaseURL        string        // optional, defaults to the OpenAI API
	APIKey         string
	Model          string        // default: "gpt-4o"
	EmbeddingModel string        // default: "text-embedding-3-small"
	Timeout        time.Duration // HTTP timeout, default: 120s
}

// Client talks to an OpenAI-compatible backend.
type Client struct {
	api            *goopenai.Client
	model          string
	embeddingModel string
}

// New returns a Client.
func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = string(goopenai.SmallEmbedding3)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	oc := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		api:            goopenai.NewClientWithConfig(oc),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
	}
}

// WithModel returns a copy of c that completes with model.
func (c *Client) WithModel(model string) *Client {
	cp := *c
	cp.model = model
	return &cp
}

// Model returns the chat model name.
func (c *Client) Model() string { return c.model }

// Complete sends one system and one user message and returns the reply.
func (c *Client) Complete(ctx context.Context, system, user string, temperature float32) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: temperature,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: user},
		},
	}
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", mapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned for model %s", c.model)
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: []string{text},
		Model: goopenai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, mapError(err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai: no embedding returned for model %s", c.embeddingModel)
	}
	return resp.Data[0].Embedding, nil
}

// mapError tags throttling and server-side failures with the provider
// sentinels so that the retry decorator can recognise them.
func mapError(err error) error {
	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", provider.ErrRateLimited, err)
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %w", provider.ErrUnavailable, err)
	case status == 0 && isNetworkError(err):
		return fmt.Errorf("%w: %w", provider.ErrUnavailable, err)
	}
	return fmt.Errorf("openai: %w", err)
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
