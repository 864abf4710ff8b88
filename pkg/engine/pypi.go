package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultPyPIURL is the JSON API root of the Python package index.
const DefaultPyPIURL = "https://pypi.org/pypi"

// PyPI probes the package index JSON API.
type PyPI struct {
	BaseURL string
	Client  *http.Client
}

var _ PackageChecker = (*PyPI)(nil)

// NewPyPI returns a checker against the public index with a short timeout.
func NewPyPI() *PyPI {
	return &PyPI{
		BaseURL: DefaultPyPIURL,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Exists requests <BaseURL>/<name>/json and reports whether it answered 200.
func (p *PyPI) Exists(ctx context.Context, name string) (bool, error) {
	base := p.BaseURL
	if base == "" {
		base = DefaultPyPIURL
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	u := strings.TrimRight(base, "/") + "/" + url.PathEscape(name) + "/json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("probing %s: %w", name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode == http.StatusOK, nil
}
