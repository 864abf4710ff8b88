// Package config provides unified configuration for codinit.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML or TOML config file (discovered or explicitly specified)
//  3. Environment variable overrides (CODINIT_ prefix, plus OPENAI_API_KEY)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"time"

	"github.com/rhuss/codinit/pkg/api"
)

// Config holds all configuration for codinit.
type Config struct {
	Server        ServerConfig        `yaml:"server" toml:"server"`
	Provider      ProviderConfig      `yaml:"provider" toml:"provider"`
	Executor      api.ExecutorConfig  `yaml:"executor" toml:"executor"`
	Sandbox       SandboxConfig       `yaml:"sandbox" toml:"sandbox"`
	Lint          LintConfig          `yaml:"lint" toml:"lint"`
	Imports       ImportsConfig       `yaml:"imports" toml:"imports"`
	Retrieval     RetrievalConfig     `yaml:"retrieval" toml:"retrieval"`
	Scrape        ScrapeConfig        `yaml:"scrape" toml:"scrape"`
	Storage       StorageConfig       `yaml:"storage" toml:"storage"`
	Auth          AuthConfig          `yaml:"auth" toml:"auth"`
	Logging       LoggingConfig       `yaml:"logging" toml:"logging"`
	Observability ObservabilityConfig `yaml:"observability" toml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port" toml:"port"`                   // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout" toml:"read_timeout"`   // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout" toml:"write_timeout"` // default: 0 (streams run long)
}

// ProviderConfig holds generation service settings.
type ProviderConfig struct {
	BaseURL    string            `yaml:"base_url" toml:"base_url"`         // optional, OpenAI-compatible endpoint
	APIKey     string            `yaml:"api_key" toml:"api_key"`           // required unless provider is offline
	APIKeyFile string            `yaml:"api_key_file" toml:"api_key_file"` // _file variant for api_key
	Model      string            `yaml:"model" toml:"model"`               // default: "gpt-4o"
	Models     map[string]string `yaml:"models" toml:"models"`             // per-role model override
	Embedding  string            `yaml:"embedding_model" toml:"embedding_model"`
	MaxRetries int               `yaml:"max_retries" toml:"max_retries"`   // default: 5
	Timeout    time.Duration     `yaml:"timeout" toml:"timeout"`           // per call, default: 120s
}

// SandboxConfig selects where generated code runs.
type SandboxConfig struct {
	Mode         string            `yaml:"mode" toml:"mode"`           // "local", "remote" or "kubernetes"
	Isolation    string            `yaml:"isolation" toml:"isolation"` // "venv" or "none"
	BasePath     string            `yaml:"base_path" toml:"base_path"` // default: "/tmp"
	Interpreter  string            `yaml:"interpreter" toml:"interpreter"`
	FileName     string            `yaml:"file_name" toml:"file_name"`
	InstallArgs  []string          `yaml:"install_args" toml:"install_args"`
	RemoteURL    string            `yaml:"remote_url" toml:"remote_url"`
	Kubernetes   KubernetesSandbox `yaml:"kubernetes" toml:"kubernetes"`
	MaxOutputLen int               `yaml:"max_output_len" toml:"max_output_len"`
}

// KubernetesSandbox configures sandbox pods claimed through SandboxClaims.
type KubernetesSandbox struct {
	Template     string        `yaml:"template" toml:"template"`
	Namespace    string        `yaml:"namespace" toml:"namespace"`
	ClaimTimeout time.Duration `yaml:"claim_timeout" toml:"claim_timeout"` // default: 2m
}

// LintConfig configures the static validator.
type LintConfig struct {
	Binary string `yaml:"binary" toml:"binary"` // default: "pylint"
}

// ImportsConfig selects the import sorter.
type ImportsConfig struct {
	Sorter    string `yaml:"sorter" toml:"sorter"` // "builtin" or "isort"
	IsortPath string `yaml:"isort_path" toml:"isort_path"`
}

// RetrievalConfig configures documentation and symbol lookup.
type RetrievalConfig struct {
	Backend       string          `yaml:"backend" toml:"backend"`               // "weaviate" or "none"
	SymbolBackend string          `yaml:"symbol_backend" toml:"symbol_backend"` // "weaviate", "mcp" or "none"
	Weaviate      WeaviateConfig  `yaml:"weaviate" toml:"weaviate"`
	MCP           MCPServerConfig `yaml:"mcp" toml:"mcp"`
}

// WeaviateConfig holds vector store settings.
type WeaviateConfig struct {
	URL         string  `yaml:"url" toml:"url"` // default: "http://localhost:8080"
	Class       string  `yaml:"class" toml:"class"`
	SymbolClass string  `yaml:"symbol_class" toml:"symbol_class"`
	TextKey     string  `yaml:"text_key" toml:"text_key"`
	K           int     `yaml:"k" toml:"k"`
	Alpha       float32 `yaml:"alpha" toml:"alpha"`
}

// MCPServerConfig describes a single MCP server connection.
type MCPServerConfig struct {
	Name      string            `yaml:"name" toml:"name"`
	Transport string            `yaml:"transport" toml:"transport"` // "sse" or "streamable-http"
	URL       string            `yaml:"url" toml:"url"`
	Tool      string            `yaml:"tool" toml:"tool"` // default: "lookup_symbol"
	Headers   map[string]string `yaml:"headers" toml:"headers"`
	Auth      MCPAuthConfig     `yaml:"auth" toml:"auth"`
}

// MCPAuthConfig configures OAuth client credentials for an MCP server.
// An empty Type means static headers only.
type MCPAuthConfig struct {
	Type         string   `yaml:"type" toml:"type"` // "oauth_client_credentials" or ""
	TokenURL     string   `yaml:"token_url" toml:"token_url"`
	ClientID     string   `yaml:"client_id" toml:"client_id"`
	ClientSecret string   `yaml:"client_secret" toml:"client_secret"`
	Scopes       []string `yaml:"scopes" toml:"scopes"`
}

// ScrapeConfig configures the documentation crawler and chunker.
type ScrapeConfig struct {
	ChunkSize    int     `yaml:"chunk_size" toml:"chunk_size"` // default: 1000
	ChunkOverlap int     `yaml:"chunk_overlap" toml:"chunk_overlap"`
	MaxPages     int     `yaml:"max_pages" toml:"max_pages"`
	MaxDepth     int     `yaml:"max_depth" toml:"max_depth"`
	Concurrency  int     `yaml:"concurrency" toml:"concurrency"`
	Rate         float64 `yaml:"rate" toml:"rate"` // requests per second
	UserAgent    string  `yaml:"user_agent" toml:"user_agent"`
}

// StorageConfig holds run log storage settings.
type StorageConfig struct {
	Type     string         `yaml:"type" toml:"type"`         // "memory", "postgres", "sqlite" or "jsonfile"
	MaxSize  int            `yaml:"max_size" toml:"max_size"` // for memory store, default: 1000
	Path     string         `yaml:"path" toml:"path"`         // sqlite database or JSON file
	Postgres PostgresConfig `yaml:"postgres" toml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn" toml:"dsn"`
	DSNFile        string `yaml:"dsn_file" toml:"dsn_file"`
	MaxConns       int32  `yaml:"max_conns" toml:"max_conns"` // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start" toml:"migrate_on_start"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type" toml:"type"` // "none", "apikey" or "jwt"
	APIKeys   []APIKeyConfig  `yaml:"api_keys" toml:"api_keys"`
	JWT       JWTConfig       `yaml:"jwt" toml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key      string `yaml:"key" toml:"key" json:"key"`
	KeyFile  string `yaml:"key_file" toml:"key_file" json:"key_file"`
	Subject  string `yaml:"subject" toml:"subject" json:"subject"`
	TenantID string `yaml:"tenant_id" toml:"tenant_id" json:"tenant_id"`
}

// JWTConfig holds settings for HMAC-signed bearer tokens.
type JWTConfig struct {
	Secret      string `yaml:"secret" toml:"secret"`
	SecretFile  string `yaml:"secret_file" toml:"secret_file"`
	Issuer      string `yaml:"issuer" toml:"issuer"`
	Audience    string `yaml:"audience" toml:"audience"`
	TenantClaim string `yaml:"tenant_claim" toml:"tenant_claim"` // default: "tenant_id"
}

// RateLimitConfig configures per-subject request limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"` // 0 disables
	Burst             int     `yaml:"burst" toml:"burst"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level      string `yaml:"level" toml:"level"`   // TRACE, DEBUG, INFO, WARN, ERROR
	Debug      string `yaml:"debug" toml:"debug"`   // comma-separated categories
	File       string `yaml:"file" toml:"file"`     // rotated log file, stderr when empty
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"` // default: true
	Path    string `yaml:"path" toml:"path"`       // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        8080,
			ReadTimeout: 30 * time.Second,
		},
		Provider: ProviderConfig{
			Model:      "gpt-4o",
			Embedding:  "text-embedding-3-small",
			MaxRetries: 5,
			Timeout:    120 * time.Second,
		},
		Executor: api.DefaultExecutorConfig(),
		Sandbox: SandboxConfig{
			Mode:         "local",
			Isolation:    "venv",
			BasePath:     "/tmp",
			Interpreter:  "python3",
			FileName:     "magic_code.py",
			MaxOutputLen: 64 * 1024,
			Kubernetes: KubernetesSandbox{
				Namespace:    "default",
				ClaimTimeout: 2 * time.Minute,
			},
		},
		Lint: LintConfig{
			Binary: "pylint",
		},
		Imports: ImportsConfig{
			Sorter:    "builtin",
			IsortPath: "isort",
		},
		Retrieval: RetrievalConfig{
			Backend:       "none",
			SymbolBackend: "none",
			Weaviate: WeaviateConfig{
				URL:         "http://localhost:8080",
				Class:       "DocumentationFile",
				SymbolClass: "Import",
				TextKey:     "content",
				K:           10,
				Alpha:       0.75,
			},
			MCP: MCPServerConfig{
				Transport: "streamable-http",
				Tool:      "lookup_symbol",
			},
		},
		Scrape: ScrapeConfig{
			ChunkSize:    1000,
			ChunkOverlap: 100,
			MaxPages:     200,
			MaxDepth:     3,
			Concurrency:  4,
			Rate:         5,
			UserAgent:    "codinit-scraper/1.0",
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 1000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			Type: "none",
			JWT: JWTConfig{
				TenantClaim: "tenant_id",
			},
		},
		Logging: LoggingConfig{
			Level:      "INFO",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// ExecutionTimeout returns the executor timeout as a duration.
func (c *Config) ExecutionTimeout() time.Duration {
	return time.Duration(c.Executor.ExecutionTimeoutSeconds) * time.Second
}
