package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("run not found")
	ErrConflict = errors.New("run already exists")
)

type tenantKey struct{}

// SetTenant scopes store operations made with the returned context to
// tenantID.
func SetTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// GetTenant returns the tenant of ctx. The empty tenant is the default
// one used by single-tenant deployments and the CLI.
func GetTenant(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantKey{}).(string)
	return tenant
}
