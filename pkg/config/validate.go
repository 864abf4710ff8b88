package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	ex := c.Executor
	if ex.CodingAttempts < 0 {
		errs = append(errs, fmt.Errorf("executor.coding_attempts must be >= 0, got %d", ex.CodingAttempts))
	}
	if ex.CodingAttempts > ex.MaxCodingAttempts {
		errs = append(errs, fmt.Errorf("executor.coding_attempts (%d) must be <= executor.max_coding_attempts (%d)",
			ex.CodingAttempts, ex.MaxCodingAttempts))
	}
	if ex.LintCorrectionThreshold < 0 {
		errs = append(errs, fmt.Errorf("executor.lint_correction_threshold must be >= 0, got %d", ex.LintCorrectionThreshold))
	}
	if ex.ExecutionTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("executor.execution_timeout_seconds must be > 0, got %d", ex.ExecutionTimeoutSeconds))
	}

	switch c.Sandbox.Mode {
	case "local":
	case "remote":
		if c.Sandbox.RemoteURL == "" {
			errs = append(errs, fmt.Errorf("sandbox.remote_url is required when sandbox.mode is \"remote\""))
		}
	case "kubernetes":
		if c.Sandbox.Kubernetes.Template == "" {
			errs = append(errs, fmt.Errorf("sandbox.kubernetes.template is required when sandbox.mode is \"kubernetes\""))
		}
	default:
		errs = append(errs, fmt.Errorf("sandbox.mode must be \"local\", \"remote\", or \"kubernetes\", got %q", c.Sandbox.Mode))
	}

	switch c.Sandbox.Isolation {
	case "venv", "none":
	default:
		errs = append(errs, fmt.Errorf("sandbox.isolation must be \"venv\" or \"none\", got %q", c.Sandbox.Isolation))
	}

	switch c.Imports.Sorter {
	case "builtin", "isort":
	default:
		errs = append(errs, fmt.Errorf("imports.sorter must be \"builtin\" or \"isort\", got %q", c.Imports.Sorter))
	}

	switch c.Retrieval.Backend {
	case "weaviate", "none":
	default:
		errs = append(errs, fmt.Errorf("retrieval.backend must be \"weaviate\" or \"none\", got %q", c.Retrieval.Backend))
	}

	switch c.Retrieval.SymbolBackend {
	case "weaviate", "none":
	case "mcp":
		if c.Retrieval.MCP.URL == "" {
			errs = append(errs, fmt.Errorf("retrieval.mcp.url is required when retrieval.symbol_backend is \"mcp\""))
		}
		switch c.Retrieval.MCP.Auth.Type {
		case "":
		case "oauth_client_credentials":
			if c.Retrieval.MCP.Auth.TokenURL == "" || c.Retrieval.MCP.Auth.ClientID == "" {
				errs = append(errs, fmt.Errorf("retrieval.mcp.auth requires token_url and client_id for oauth_client_credentials"))
			}
		default:
			errs = append(errs, fmt.Errorf("retrieval.mcp.auth.type must be \"oauth_client_credentials\" or empty, got %q", c.Retrieval.MCP.Auth.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("retrieval.symbol_backend must be \"weaviate\", \"mcp\", or \"none\", got %q", c.Retrieval.SymbolBackend))
	}

	if c.Scrape.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("scrape.chunk_size must be > 0, got %d", c.Scrape.ChunkSize))
	}
	if c.Scrape.ChunkOverlap < 0 || c.Scrape.ChunkOverlap >= c.Scrape.ChunkSize {
		errs = append(errs, fmt.Errorf("scrape.chunk_overlap must be in [0, chunk_size), got %d", c.Scrape.ChunkOverlap))
	}

	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	case "sqlite", "jsonfile":
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required when storage.type is %q", c.Storage.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\", \"postgres\", \"sqlite\", or \"jsonfile\", got %q", c.Storage.Type))
	}

	switch c.Auth.Type {
	case "none", "apikey":
	case "jwt":
		if c.Auth.JWT.Secret == "" && c.Auth.JWT.SecretFile == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.secret or auth.jwt.secret_file is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	return errors.Join(errs...)
}
