package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/config"
	"github.com/rhuss/codinit/pkg/debug"
	"github.com/rhuss/codinit/pkg/report"
)

// defaultTasks are solved when no task file is given.
var defaultTasks = []taskSpec{
	{Task: "using langchain library, write code that answers a question over a given text."},
	{Task: "using the langchain library, write code for an agent that answers math questions."},
	{Task: "using the langchain library, write code for an agent that automatically gives information about the weather."},
	{Task: "using the langchain library, write code for a coding agent that writes python code based on prompts."},
	{Task: "using the langchain library, write code to answer some questions by reading wikipedia articles."},
}

// taskSpec is one entry of a task file. A plain string is a task without
// libraries.
type taskSpec struct {
	Task      string   `yaml:"task" toml:"task"`
	Libraries []string `yaml:"libraries" toml:"libraries"`
}

// UnmarshalYAML accepts a string or a mapping.
func (t *taskSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&t.Task)
	}
	type plain taskSpec
	return node.Decode((*plain)(t))
}

// UnmarshalTOML accepts a string or a table.
func (t *taskSpec) UnmarshalTOML(v any) error {
	switch v := v.(type) {
	case string:
		t.Task = v
	case map[string]any:
		t.Task, _ = v["task"].(string)
		libs, _ := v["libraries"].([]any)
		for _, l := range libs {
			s, ok := l.(string)
			if !ok {
				return fmt.Errorf("libraries must be strings, got %T", l)
			}
			t.Libraries = append(t.Libraries, s)
		}
	default:
		return fmt.Errorf("task must be a string or a table, got %T", v)
	}
	return nil
}

type taskFile struct {
	Tasks []taskSpec `yaml:"tasks" toml:"tasks"`
}

// loadTasks reads a YAML or TOML task file. An empty path yields the
// default tasks.
func loadTasks(path string) ([]taskSpec, error) {
	if path == "" {
		return defaultTasks, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f taskFile
	if err := config.Decode(path, data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	tasks := f.Tasks[:0]
	for _, t := range f.Tasks {
		if strings.TrimSpace(t.Task) != "" {
			tasks = append(tasks, t)
		}
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%s contains no tasks", path)
	}
	return tasks, nil
}

// gitInfo returns the current commit SHA and message, or empty strings
// outside a git checkout.
func gitInfo(ctx context.Context) (sha, message string) {
	out, err := exec.CommandContext(ctx, "git", "rev-parse", "HEAD").Output()
	if err != nil {
		debug.Log("engine", "no git revision", "error", err)
		return "", ""
	}
	sha = strings.TrimSpace(string(out))
	if out, err = exec.CommandContext(ctx, "git", "log", "-1", "--pretty=%B").Output(); err == nil {
		message = strings.TrimSpace(string(out))
	}
	return sha, message
}

func newRunCmd(a *app) *cobra.Command {
	var tasksPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Solve a list of tasks and record them as one run",
		Long: `Solve each task in turn and record the task logs as one run in the
configured store. Without --tasks a built-in set of tasks is used.

A task file lists tasks as strings or as {task, libraries} entries:

  tasks:
    - print the first ten primes
    - task: plot a sine wave
      libraries: [numpy, matplotlib]`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tasks, err := loadTasks(tasksPath)
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), cmd.OutOrStdout(), tasks)
		},
	}
	cmd.Flags().StringVarP(&tasksPath, "tasks", "t", "", "YAML or TOML task file")
	return cmd
}

func (a *app) run(ctx context.Context, out io.Writer, tasks []taskSpec) error {
	var cl cleanups
	defer cl.run()

	store, err := openStore(ctx, a.cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", a.cfg.Storage.Type, err)
	}
	cl.add(func() { store.Close() })

	sha, msg := gitInfo(ctx)
	eng, err := buildEngine(a.cfg, store, sha, msg, &cl)
	if err != nil {
		return err
	}

	live := isTerminal(out)
	for i, t := range tasks {
		fmt.Fprintf(out, "[%d/%d] %s\n", i+1, len(tasks), debug.Truncate(t.Task, 80))
		emit := func(context.Context, api.StreamMessage) {}
		if live {
			emit = progress(out)
		}
		req := &api.TaskRequest{Task: t.Task, Libraries: t.Libraries}
		log, err := eng.Generate(ctx, req, emit)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			slog.Error("task failed", "task_id", i, "error", err)
			fmt.Fprintf(out, "  error: %v\n", err)
		default:
			fmt.Fprintf(out, "  succeeded=%t metric=%d attempts=%d\n",
				log.Succeeded, log.Metric, len(log.GenerationAttempts))
		}
	}

	runID := eng.RunID(ctx)
	if runID == "" {
		return nil
	}
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("reading run %s: %w", runID, err)
	}
	fmt.Fprintln(out)
	report.Tasks(out, run)
	return nil
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// progress returns an emitter for one task that prints a line when the
// plan is ready and one per failed attempt.
func progress(out io.Writer) func(context.Context, api.StreamMessage) {
	planned := false
	return func(_ context.Context, msg api.StreamMessage) {
		switch {
		case msg.Plan != "" && !planned:
			planned = true
			fmt.Fprintln(out, "  plan ready")
		case msg.Error != "" && !msg.IsFinal:
			first, _, _ := strings.Cut(msg.Error, "\n")
			fmt.Fprintf(out, "  %s\n", debug.Truncate(first, 100))
		}
	}
}
