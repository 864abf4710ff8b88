package api

import (
	"strings"
	"time"
)

// The types in this file form the persisted experiment log. Field names
// follow the established on-disk format.

// ExecutorConfig controls how a task is executed and healed. It is
// recorded verbatim in every TaskLog so runs can be compared later.
type ExecutorConfig struct {
	ExecuteCode                  bool     `json:"execute_code" yaml:"execute_code" toml:"execute_code"`
	InstallDependencies          bool     `json:"install_dependencies" yaml:"install_dependencies" toml:"install_dependencies"`
	CheckPackageIsInPyPI         bool     `json:"check_package_is_in_pypi" yaml:"check_package_is_in_pypi" toml:"check_package_is_in_pypi"`
	CodingAttempts               int      `json:"coding_attempts" yaml:"coding_attempts" toml:"coding_attempts"`
	MaxCodingAttempts            int      `json:"max_coding_attempts" yaml:"max_coding_attempts" toml:"max_coding_attempts"`
	DependencyInstallAttempts    int      `json:"dependency_install_attempts" yaml:"dependency_install_attempts" toml:"dependency_install_attempts"`
	LintCorrectionThreshold      int      `json:"lint_correction_threshold" yaml:"lint_correction_threshold" toml:"lint_correction_threshold"`
	ExecutionTimeoutSeconds      int      `json:"execution_timeout_seconds" yaml:"execution_timeout_seconds" toml:"execution_timeout_seconds"`
	PlannerTemperature           float32  `json:"planner_temperature" yaml:"planner_temperature" toml:"planner_temperature"`
	CoderTemperature             float32  `json:"coder_temperature" yaml:"coder_temperature" toml:"coder_temperature"`
	CodeCorrectorTemperature     float32  `json:"code_corrector_temperature" yaml:"code_corrector_temperature" toml:"code_corrector_temperature"`
	DependencyTrackerTemperature float32  `json:"dependency_tracker_temperature" yaml:"dependency_tracker_temperature" toml:"dependency_tracker_temperature"`
	DependencyBlacklist          []string `json:"dependency_blacklist,omitempty" yaml:"dependency_blacklist" toml:"dependency_blacklist"`
}

// DefaultExecutorConfig returns the executor settings used when nothing
// is configured.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		ExecuteCode:               true,
		InstallDependencies:       true,
		CheckPackageIsInPyPI:      true,
		CodingAttempts:            1,
		MaxCodingAttempts:         5,
		DependencyInstallAttempts: 5,
		LintCorrectionThreshold:   3,
		ExecutionTimeoutSeconds:   30,
		DependencyBlacklist:       []string{"random", "json"},
	}
}

// Run is one benchmark or service session: a set of tasks executed
// against the same code revision.
type Run struct {
	Timestamp     time.Time `json:"Timestamp"`
	RunID         string    `json:"Run_ID"`
	GitSHA        string    `json:"Git_SHA"`
	CommitMessage string    `json:"Commit_Message"`
	Tasks         []TaskLog `json:"Tasks"`
}

// Metric returns the sum of all task metrics of the run.
func (r *Run) Metric() int {
	total := 0
	for _, t := range r.Tasks {
		total += t.Metric
	}
	return total
}

// TaskLog aggregates everything that happened while one task was solved.
type TaskLog struct {
	TaskID             int                 `json:"Task_ID"`
	Task               string              `json:"Task"`
	Metric             int                 `json:"Metric"`
	Time               time.Time           `json:"Time"`
	Config             ExecutorConfig      `json:"TaskExecutorConfig"`
	InitialCode        InitialCode         `json:"Initial_Code"`
	GenerationAttempts []GenerationAttempt `json:"Generation_Attempts"`
	Succeeded          bool                `json:"Succeeded"`
	FinalCode          string              `json:"Final_Code,omitempty"`
	FinalError         string              `json:"Final_Error,omitempty"`
}

// SumMetric recomputes Metric from the generation attempts.
func (t *TaskLog) SumMetric() int {
	total := 0
	for _, g := range t.GenerationAttempts {
		total += g.Metric
	}
	t.Metric = total
	return total
}

// InitialCode records the pipeline stages that run before healing starts.
type InitialCode struct {
	Timestamp             time.Time             `json:"Timestamp"`
	DocumentationScraping DocumentationScraping `json:"Documentation_Scraping"`
	GeneratedPlan         GeneratedPlan         `json:"Generated_Plan"`
	Dependencies          Dependencies          `json:"Dependencies"`
	CodingAgent           CodeGeneration        `json:"Coding_Agent"`
}

// DocumentationScraping holds the retrieved context and its size.
type DocumentationScraping struct {
	RelevantDocs string `json:"Relevant_Docs"`
	NumTokens    int    `json:"num_tokens"`
}

// GeneratedPlan holds the planner's steps.
type GeneratedPlan struct {
	Plan []string `json:"Plan"`
}

// Dependencies holds the resolved package names.
type Dependencies struct {
	Dependencies []string `json:"Dependencies"`
}

// CodeGeneration is the output of a coder or corrector call.
type CodeGeneration struct {
	Thought       string `json:"Thought"`
	GeneratedCode string `json:"Generated_Code"`
}

// GenerationAttempt is one outer round of the healing loop.
type GenerationAttempt struct {
	Time           float64          `json:"time"`
	GenerationID   int              `json:"Generation_ID"`
	LintingLoop    []LintingAttempt `json:"Linting_Loop"`
	CorrectionLoop *CorrectionLoop  `json:"Correction_Loop,omitempty"`
	Metric         int              `json:"Metric"`
}

// SumMetric recomputes Metric from the lint rounds and the correction step.
func (g *GenerationAttempt) SumMetric() int {
	total := 0
	for _, l := range g.LintingLoop {
		total += l.Metric
	}
	if g.CorrectionLoop != nil {
		total += g.CorrectionLoop.Metric
	}
	g.Metric = total
	return total
}

// LintingAttempt is one round of the lint-correction loop.
type LintingAttempt struct {
	Timestamp       time.Time       `json:"Timestamp"`
	LintAttempt     int             `json:"lint_attempt"`
	Code            string          `json:"Code,omitempty"`
	LintQueryResult string          `json:"Lint_Query_Result,omitempty"`
	LintResponse    string          `json:"Lint_Response,omitempty"`
	GeneratedCode   *CodeGeneration `json:"Generated_Code,omitempty"`
	LintResult      []string        `json:"Lint_Result"`
	Metric          int             `json:"Metric"`
}

// CorrectionLoop is the single runtime-correction step of an outer round.
// Error1 is the outcome before the correction, Error2 the outcome after it.
type CorrectionLoop struct {
	Timestamp     time.Time      `json:"Timestamp"`
	Error1        string         `json:"Error1"`
	GeneratedCode CodeGeneration `json:"Generated_Code"`
	LintResult    []string       `json:"Lint_Result"`
	Metric        int            `json:"Metric"`
	Error2        string         `json:"Error2"`
}

// EstimateTokens returns a rough token count for s, counting
// whitespace-separated words.
func EstimateTokens(s string) int {
	return len(strings.Fields(s))
}
