// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring codinit.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// ExecBuckets covers sandbox runs, from a trivial script to a full timeout.
var ExecBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and route.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codinit_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds by method and route.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codinit_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "route"},
	)

	// StreamingConnections tracks active SSE and WebSocket connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "codinit_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// ProviderRequestsTotal counts generation calls by role, model and outcome.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codinit_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"role", "model", "status"},
	)

	// ProviderLatency records generation latency in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codinit_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"role", "model"},
	)

	// ProviderRetriesTotal counts retried generation calls by role.
	ProviderRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codinit_provider_retries_total",
			Help: "Provider retries",
		},
		[]string{"role"},
	)

	// SandboxRunsTotal counts code executions by runner and result kind.
	SandboxRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codinit_sandbox_runs_total",
			Help: "Sandbox executions",
		},
		[]string{"runner", "kind"},
	)

	// SandboxRunDuration records execution wall time in seconds.
	SandboxRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codinit_sandbox_run_duration_seconds",
			Help:    "Sandbox execution duration",
			Buckets: ExecBuckets,
		},
		[]string{"runner"},
	)

	// DependencyInstallsTotal counts pip install invocations by outcome.
	DependencyInstallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codinit_dependency_installs_total",
			Help: "Dependency installs",
		},
		[]string{"status"},
	)

	// LintRoundsTotal counts lint passes by whether they came back clean.
	LintRoundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codinit_lint_rounds_total",
			Help: "Lint passes",
		},
		[]string{"clean"},
	)

	// HealTasksTotal counts healed tasks by outcome.
	HealTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codinit_heal_tasks_total",
			Help: "Tasks run through the healing loop",
		},
		[]string{"outcome"},
	)

	// HealAttempts records the number of generation attempts per task.
	HealAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "codinit_heal_attempts",
			Help:    "Generation attempts per task",
			Buckets: []float64{1, 2, 3, 4, 5, 6},
		},
	)

	// TaskMetric records the summed diagnostic metric per task.
	TaskMetric = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "codinit_task_metric",
			Help:    "Summed diagnostic count per task",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	// ScrapePagesTotal counts crawled pages by outcome.
	ScrapePagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codinit_scrape_pages_total",
			Help: "Crawled pages",
		},
		[]string{"status"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codinit_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tenant"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		ProviderRequestsTotal,
		ProviderLatency,
		ProviderRetriesTotal,
		SandboxRunsTotal,
		SandboxRunDuration,
		DependencyInstallsTotal,
		LintRoundsTotal,
		HealTasksTotal,
		HealAttempts,
		TaskMetric,
		ScrapePagesTotal,
		RateLimitRejectedTotal,
	)
}
