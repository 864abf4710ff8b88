package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/storage"
	"github.com/rhuss/codinit/pkg/storage/jsonfile"
)

// seedRuns writes one run with two tasks to a JSON run file and returns
// the file path and the run ID.
func seedRuns(t *testing.T) (string, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.json")
	store, err := jsonfile.New(path)
	if err != nil {
		t.Fatalf("jsonfile.New: %v", err)
	}
	ctx := context.Background()
	run := storage.NewRun("0123456789abcdef", "Tune prompts")
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	for i, task := range []string{"print hello", "plot a sine wave"} {
		log := &api.TaskLog{TaskID: i, Task: task, Metric: i * 3, Succeeded: i == 0,
			GenerationAttempts: []api.GenerationAttempt{{GenerationID: 0}}}
		if err := store.AppendTask(ctx, run.RunID, log); err != nil {
			t.Fatalf("AppendTask: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path, run.RunID
}

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestReportCommand(t *testing.T) {
	runsPath, runID := seedRuns(t)
	cfgPath := writeFile(t, "codinit.yaml", fmt.Sprintf("storage:\n  type: jsonfile\n  path: %s\n", runsPath))

	out, err := executeRoot(t, "report", "-c", cfgPath)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	for _, want := range []string{runID, "01234567", "1 RUNS"} {
		if !strings.Contains(out, want) {
			t.Errorf("runs output missing %q:\n%s", want, out)
		}
	}

	out, err = executeRoot(t, "report", runID, "-c", cfgPath)
	if err != nil {
		t.Fatalf("report %s: %v", runID, err)
	}
	for _, want := range []string{"Run " + runID, "print hello", "plot a sine wave", "2 TASKS", "1/2"} {
		if !strings.Contains(out, want) {
			t.Errorf("tasks output missing %q:\n%s", want, out)
		}
	}
}

func TestReportCommandUnknownRun(t *testing.T) {
	runsPath, _ := seedRuns(t)
	cfgPath := writeFile(t, "codinit.yaml", fmt.Sprintf("storage:\n  type: jsonfile\n  path: %s\n", runsPath))

	_, err := executeRoot(t, "report", "run_missing", "-c", cfgPath)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("got %v, want a not found error", err)
	}
}

func TestReportCommandEmptyStore(t *testing.T) {
	cfgPath := writeFile(t, "codinit.yaml", "storage:\n  type: memory\n")

	out, err := executeRoot(t, "report", "-c", cfgPath)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !strings.Contains(out, "no runs recorded") {
		t.Errorf("got %q, want the empty notice", out)
	}
}

func TestInvalidConfigFails(t *testing.T) {
	cfgPath := writeFile(t, "codinit.yaml", "storage:\n  type: redis\n")

	if _, err := executeRoot(t, "report", "-c", cfgPath); err == nil {
		t.Error("expected a validation error")
	}
}

func TestScrapeRequiresOneSource(t *testing.T) {
	cfgPath := writeFile(t, "codinit.yaml", "storage:\n  type: memory\n")

	tests := [][]string{
		{"scrape", "-c", cfgPath, "--library", "numpy"},
		{"scrape", "-c", cfgPath, "--library", "numpy", "--url", "http://x", "--dir", "."},
		{"scrape", "-c", cfgPath, "--url", "http://x"},
	}
	for _, args := range tests {
		if _, err := executeRoot(t, args...); err == nil {
			t.Errorf("%v: expected an error", args)
		}
	}
}

func TestScrapeDryRun(t *testing.T) {
	dir := t.TempDir()
	writeDoc := func(name, body string) {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeDoc("intro.md", "# Intro\n\nimport numpy as np\nfrom numpy.linalg import norm\n")
	writeDoc("usage.md", "# Usage\n\nCall the functions.\n")
	cfgPath := writeFile(t, "codinit.yaml", "storage:\n  type: memory\n")

	out, err := executeRoot(t, "scrape", "-c", cfgPath, "--dir", dir, "--library", "numpy", "--dry-run")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if !strings.HasPrefix(out, "2 documents, 2 chunks") {
		t.Errorf("got %q", out)
	}
}
