package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrAtCapacity means every execution slot of the sandbox server is busy.
var ErrAtCapacity = errors.New("sandbox at capacity")

// maxErrorBody bounds how much of a non-200 body ends up in an error.
const maxErrorBody = 4 << 10

// Client posts execution and install requests to a sandbox server.
type Client struct {
	http *http.Client
}

// NewClient returns a client whose overall deadline covers a dependency
// install followed by a run. The server enforces the run timeout itself.
func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: 10 * time.Minute}}
}

// Execute runs req on the sandbox at baseURL.
func (c *Client) Execute(ctx context.Context, baseURL string, req *ExecuteRequest) (*ExecuteResponse, error) {
	var out ExecuteResponse
	if err := c.post(ctx, baseURL, "/execute", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Install asks the sandbox at baseURL to install req.Requirements and
// returns the installer's outcome.
func (c *Client) Install(ctx context.Context, baseURL string, req *InstallRequest) (*ExecuteResponse, error) {
	var out ExecuteResponse
	if err := c.post(ctx, baseURL, "/install", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, baseURL, path string, in, out any) error {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(in); err != nil {
		return fmt.Errorf("encoding %s request: %w", path, err)
	}
	endpoint := strings.TrimSuffix(baseURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("calling sandbox: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return ErrAtCapacity
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("sandbox %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
