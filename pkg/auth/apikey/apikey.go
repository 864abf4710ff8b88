// Package apikey provides an API key authenticator that validates
// bearer tokens or X-API-Key headers against a static key store using
// SHA-256 hashing and constant-time comparison.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"maps"
	"net/http"
	"strings"

	"github.com/rhuss/codinit/pkg/auth"
)

// HeaderName is the alternative header carrying a raw API key.
const HeaderName = "X-API-Key"

// KeyEntry maps a key hash to an identity.
type KeyEntry struct {
	KeyHash  [32]byte
	Identity auth.Identity
}

// RawKeyEntry is the configuration format for API keys.
type RawKeyEntry struct {
	Key      string
	Subject  string
	TenantID string
}

// Authenticator validates API keys against a static key store.
type Authenticator struct {
	keys []KeyEntry
}

var _ auth.Authenticator = (*Authenticator)(nil)

// New creates an API key authenticator. Keys are hashed immediately;
// plaintext keys are not stored. Entries without a key are skipped.
func New(entries []RawKeyEntry) *Authenticator {
	a := &Authenticator{}
	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		id := auth.Identity{Subject: e.Subject}
		if id.Subject == "" {
			id.Subject = "apikey"
		}
		if e.TenantID != "" {
			id.Metadata = map[string]string{auth.TenantMetadataKey: e.TenantID}
		}
		a.keys = append(a.keys, KeyEntry{
			KeyHash:  sha256.Sum256([]byte(e.Key)),
			Identity: id,
		})
	}
	return a
}

// Len returns the number of configured keys.
func (a *Authenticator) Len() int { return len(a.keys) }

// Authenticate returns Yes for a known key, No for an unknown or empty
// one, and Abstain when the request carries no key at all.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	key, ok := extractKey(r)
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if key == "" {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	keyHash := sha256.Sum256([]byte(key))
	for _, entry := range a.keys {
		if subtle.ConstantTimeCompare(keyHash[:], entry.KeyHash[:]) == 1 {
			// Copy identity to avoid shared state.
			id := entry.Identity
			id.Metadata = maps.Clone(entry.Identity.Metadata)
			return auth.AuthResult{Decision: auth.Yes, Identity: &id}
		}
	}

	return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
}

func extractKey(r *http.Request) (string, bool) {
	if v := r.Header.Get(HeaderName); v != "" {
		return strings.TrimSpace(v), true
	}
	return auth.BearerToken(r)
}
