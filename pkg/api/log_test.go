package api

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestGenerationAttemptSumMetric(t *testing.T) {
	g := GenerationAttempt{
		LintingLoop: []LintingAttempt{
			{LintAttempt: 0, Metric: 2},
			{LintAttempt: 1, Metric: 1},
			{LintAttempt: 2, Metric: 0},
		},
		CorrectionLoop: &CorrectionLoop{Metric: 1},
	}
	if got := g.SumMetric(); got != 4 {
		t.Errorf("SumMetric() = %d, want 4", got)
	}
	if g.Metric != 4 {
		t.Errorf("Metric = %d, want 4", g.Metric)
	}
}

func TestTaskLogSumMetric(t *testing.T) {
	task := TaskLog{GenerationAttempts: []GenerationAttempt{{Metric: 3}, {Metric: 2}}}
	if got := task.SumMetric(); got != 5 {
		t.Errorf("SumMetric() = %d, want 5", got)
	}
	run := Run{Tasks: []TaskLog{task, {Metric: 1}}}
	if got := run.Metric(); got != 6 {
		t.Errorf("Run.Metric() = %d, want 6", got)
	}
}

func TestRunJSONFieldNames(t *testing.T) {
	run := Run{
		RunID:  "r",
		GitSHA: "abc",
		Tasks: []TaskLog{{
			TaskID: 1,
			Config: DefaultExecutorConfig(),
			GenerationAttempts: []GenerationAttempt{{
				LintingLoop: []LintingAttempt{{LintResult: []string{"x"}}},
			}},
		}},
	}
	data, err := json.Marshal(run)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{
		`"Run_ID"`, `"Git_SHA"`, `"Commit_Message"`, `"Task_ID"`,
		`"TaskExecutorConfig"`, `"Initial_Code"`, `"Generation_Attempts"`,
		`"Linting_Loop"`, `"lint_attempt"`, `"Lint_Result"`, `"coding_attempts"`,
	} {
		if !strings.Contains(string(data), key) {
			t.Errorf("marshaled run missing key %s", key)
		}
	}
	if strings.Contains(string(data), `"Correction_Loop"`) {
		t.Error("nil Correction_Loop should be omitted")
	}
}

func TestDefaultExecutorConfig(t *testing.T) {
	cfg := DefaultExecutorConfig()
	if cfg.CodingAttempts != 1 || cfg.MaxCodingAttempts != 5 {
		t.Errorf("coding attempts = %d/%d, want 1/5", cfg.CodingAttempts, cfg.MaxCodingAttempts)
	}
	if cfg.LintCorrectionThreshold != 3 {
		t.Errorf("LintCorrectionThreshold = %d, want 3", cfg.LintCorrectionThreshold)
	}
	if !cfg.ExecuteCode || !cfg.InstallDependencies || !cfg.CheckPackageIsInPyPI {
		t.Error("execute/install/pypi defaults should be enabled")
	}
}

func TestTaskRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     TaskRequest
		want    string
		wantErr bool
	}{
		{"task", TaskRequest{Task: " plot data "}, "plot data", false},
		{"prompt alias", TaskRequest{Prompt: "fetch url"}, "fetch url", false},
		{"task wins", TaskRequest{Task: "a", Prompt: "b"}, "a", false},
		{"empty", TaskRequest{}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
			if err := tt.req.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
