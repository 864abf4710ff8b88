package storage

import (
	"context"
	"testing"
)

func TestTenantContext(t *testing.T) {
	tests := []struct {
		name string
		ctx  func() context.Context
		want string
	}{
		{"unset", context.Background, ""},
		{"set", func() context.Context { return SetTenant(context.Background(), "team-a") }, "team-a"},
		{"innermost wins", func() context.Context {
			return SetTenant(SetTenant(context.Background(), "team-a"), "team-b")
		}, "team-b"},
		{"string key ignored", func() context.Context {
			return context.WithValue(context.Background(), "tenant", "team-a")
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetTenant(tt.ctx()); got != tt.want {
				t.Errorf("GetTenant = %q, want %q", got, tt.want)
			}
		})
	}
}
