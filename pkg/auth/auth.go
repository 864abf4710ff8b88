package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
)

// AuthDecision is an authenticator's vote on a request.
type AuthDecision int

const (
	// Yes accepts the request and ends the chain.
	Yes AuthDecision = iota
	// No rejects credentials the authenticator understands but does not
	// accept, and ends the chain.
	No
	// Abstain passes the request to the next authenticator.
	Abstain
)

var decisionNames = [...]string{Yes: "yes", No: "no", Abstain: "abstain"}

func (d AuthDecision) String() string {
	if d < 0 || int(d) >= len(decisionNames) {
		return "unknown"
	}
	return decisionNames[d]
}

// AuthResult is a vote. Identity is set for Yes and Err for No.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity
	Err      error
}

// Identity is an authenticated caller. Subject is never empty.
type Identity struct {
	Subject  string
	Scopes   []string
	Metadata map[string]string
}

// TenantMetadataKey names the Metadata entry that scopes run storage.
const TenantMetadataKey = "tenant_id"

func (id *Identity) TenantID() string {
	if id == nil {
		return ""
	}
	return id.Metadata[TenantMetadataKey]
}

func (id *Identity) HasScope(scope string) bool {
	return id != nil && slices.Contains(id.Scopes, scope)
}

// Anonymous is the caller of a request every authenticator abstained on,
// in a chain that defaults to Yes.
func Anonymous() *Identity {
	return &Identity{Subject: "anonymous"}
}

type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// AuthChain asks its authenticators in order. The first vote other than
// Abstain decides; DefaultDecision applies when all abstain.
type AuthChain struct {
	Authenticators  []Authenticator
	DefaultDecision AuthDecision
}

// NewChain returns a chain that rejects requests no authenticator claims.
func NewChain(authenticators ...Authenticator) *AuthChain {
	return &AuthChain{Authenticators: authenticators, DefaultDecision: No}
}

func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for _, a := range c.Authenticators {
		if res := a.Authenticate(ctx, r); res.Decision != Abstain {
			return res
		}
	}
	if c.DefaultDecision == Yes {
		return AuthResult{Decision: Yes, Identity: Anonymous()}
	}
	return AuthResult{Decision: No, Err: ErrUnauthenticated}
}

// BearerToken returns the token of an "Authorization: Bearer" header and
// whether the header used that scheme.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return "", false
	}
	return header[7:], true
}
