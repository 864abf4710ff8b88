package postgres

import (
	"cmp"
	"time"
)

// Config configures the connection pool. Zero values fall back to
// defaults.
type Config struct {
	DSN             string
	MaxConns        int32         // default: 25
	MinConns        int32         // default: 2
	MaxConnLifetime time.Duration // default: 5m
	// MigrateOnStart applies pending schema migrations in New.
	MigrateOnStart bool
}

func (c *Config) defaults() {
	c.MaxConns = cmp.Or(c.MaxConns, 25)
	c.MinConns = cmp.Or(c.MinConns, 2)
	c.MaxConnLifetime = cmp.Or(c.MaxConnLifetime, 5*time.Minute)
}
