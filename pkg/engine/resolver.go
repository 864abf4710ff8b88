package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rhuss/codinit/pkg/debug"
)

// PackageChecker reports whether a package exists in an index.
type PackageChecker interface {
	Exists(ctx context.Context, name string) (bool, error)
}

// Resolver turns the dependency tracker's answer into installable
// package names.
type Resolver struct {
	blacklist map[string]bool
	checker   PackageChecker
	logger    *slog.Logger
}

// NewResolver creates a Resolver. Names in blacklist are never returned. A
// nil checker disables the index probe.
func NewResolver(blacklist []string, checker PackageChecker, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	bl := make(map[string]bool, len(blacklist))
	for _, b := range blacklist {
		bl[strings.TrimSpace(b)] = true
	}
	return &Resolver{blacklist: bl, checker: checker, logger: logger}
}

// Resolve accepts a []string, a []any of strings, or a string holding a
// JSON or Python-style list. Each candidate is trimmed and cut at the first
// space; names shorter than two characters and blacklisted names are
// dropped. The result keeps first-seen order without duplicates. An
// unparsable string yields nil.
//
// When a checker is set, every candidate is probed. A missing package is
// only logged; the probe never removes a name.
func (r *Resolver) Resolve(ctx context.Context, raw any) []string {
	var candidates []string
	switch v := raw.(type) {
	case nil:
		return nil
	case []string:
		candidates = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				candidates = append(candidates, s)
			}
		}
	case string:
		parsed, err := ParseList(v)
		if err != nil {
			r.logger.Warn("could not parse dependency list", "input", debug.Truncate(v, 200), "error", err)
			return nil
		}
		candidates = parsed
	default:
		r.logger.Warn("unsupported dependency list type", "type", fmt.Sprintf("%T", raw))
		return nil
	}

	seen := make(map[string]bool, len(candidates))
	var out []string
	for _, c := range candidates {
		name := strings.TrimSpace(c)
		if i := strings.IndexByte(name, ' '); i >= 0 {
			name = name[:i]
		}

		if r.checker != nil && name != "" {
			ok, err := r.checker.Exists(ctx, name)
			switch {
			case err != nil:
				r.logger.Warn("package index probe failed", "package", name, "error", err)
			case !ok:
				r.logger.Warn("package not found in index", "package", name)
			}
		}

		if len(name) < 2 || r.blacklist[name] || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	debug.Log("engine", "dependencies resolved", "input", len(candidates), "output", out)
	return out
}

// ParseList parses a list literal of strings. JSON arrays and
// Python-style lists with single or double quoted items are accepted.
func ParseList(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err == nil {
		return out, nil
	}
	return parsePythonList(s)
}

func parsePythonList(s string) ([]string, error) {
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("not a list literal")
	}
	body := s[1 : len(s)-1]
	var out []string
	i := 0
	expectItem := true
	for i < len(body) {
		c := body[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == ',':
			if expectItem {
				return nil, fmt.Errorf("unexpected ',' at offset %d", i+1)
			}
			expectItem = true
			i++
		case c == '\'' || c == '"':
			if !expectItem {
				return nil, fmt.Errorf("missing ',' at offset %d", i+1)
			}
			var b strings.Builder
			j := i + 1
			closed := false
			for j < len(body) {
				if body[j] == '\\' && j+1 < len(body) {
					b.WriteByte(body[j+1])
					j += 2
					continue
				}
				if body[j] == c {
					closed = true
					break
				}
				b.WriteByte(body[j])
				j++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated string at offset %d", i+1)
			}
			out = append(out, b.String())
			expectItem = false
			i = j + 1
		default:
			return nil, fmt.Errorf("unexpected %q at offset %d", c, i+1)
		}
	}
	return out, nil
}
