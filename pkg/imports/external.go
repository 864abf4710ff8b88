package imports

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ExternalSorter pipes code through "isort -".
type ExternalSorter struct {
	// Path is the isort executable. Empty means "isort" on PATH.
	Path string
}

var _ Sorter = ExternalSorter{}

// Sort implements Sorter.
func (s ExternalSorter) Sort(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return code, nil
	}
	bin := s.Path
	if bin == "" {
		bin = "isort"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-")
	cmd.Stdin = strings.NewReader(code)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("isort: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
