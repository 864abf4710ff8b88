package apikey

import (
	"context"
	"net/http"
	"testing"

	"github.com/rhuss/codinit/pkg/auth"
)

func newTestAuth() *Authenticator {
	return New([]RawKeyEntry{
		{Key: "sk-test-key-1", Subject: "alice", TenantID: "org-1"},
		{Key: "sk-test-key-2", Subject: "bob"},
		{Key: "sk-test-key-3"},
		{Subject: "no-key"},
	})
}

func request(header, value string) *http.Request {
	r, _ := http.NewRequest("GET", "/", nil)
	if header != "" {
		r.Header.Set(header, value)
	}
	return r
}

func TestNewSkipsEmptyKeys(t *testing.T) {
	if got := newTestAuth().Len(); got != 3 {
		t.Errorf("Len = %d, want 3", got)
	}
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		value       string
		wantDec     auth.AuthDecision
		wantSubject string
		wantTenant  string
	}{
		{"valid bearer", "Authorization", "Bearer sk-test-key-1", auth.Yes, "alice", "org-1"},
		{"second key", "Authorization", "Bearer sk-test-key-2", auth.Yes, "bob", ""},
		{"default subject", "Authorization", "Bearer sk-test-key-3", auth.Yes, "apikey", ""},
		{"x-api-key header", HeaderName, "sk-test-key-2", auth.Yes, "bob", ""},
		{"invalid key", "Authorization", "Bearer sk-wrong-key", auth.No, "", ""},
		{"invalid x-api-key", HeaderName, "sk-wrong-key", auth.No, "", ""},
		{"empty bearer token", "Authorization", "Bearer ", auth.No, "", ""},
		{"non-bearer header", "Authorization", "Basic dXNlcjpwYXNz", auth.Abstain, "", ""},
		{"no header", "", "", auth.Abstain, "", ""},
	}

	a := newTestAuth()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := a.Authenticate(context.Background(), request(tt.header, tt.value))

			if result.Decision != tt.wantDec {
				t.Fatalf("Decision = %s, want %s", result.Decision, tt.wantDec)
			}
			if tt.wantDec != auth.Yes {
				if result.Identity != nil {
					t.Errorf("Identity = %+v, want nil", result.Identity)
				}
				return
			}
			if result.Identity.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", result.Identity.Subject, tt.wantSubject)
			}
			if result.Identity.TenantID() != tt.wantTenant {
				t.Errorf("TenantID = %q, want %q", result.Identity.TenantID(), tt.wantTenant)
			}
		})
	}
}

func TestIdentityIsCopied(t *testing.T) {
	a := newTestAuth()
	first := a.Authenticate(context.Background(), request("Authorization", "Bearer sk-test-key-1"))
	first.Identity.Metadata[auth.TenantMetadataKey] = "tampered"
	first.Identity.Subject = "mallory"

	second := a.Authenticate(context.Background(), request("Authorization", "Bearer sk-test-key-1"))
	if second.Identity.Subject != "alice" || second.Identity.TenantID() != "org-1" {
		t.Errorf("stored identity was modified: %+v", second.Identity)
	}
}
