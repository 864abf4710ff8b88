// Package auth guards the codinit HTTP endpoints.
//
// Authenticators vote on each request: Yes (identity found), No
// (credentials present but invalid) or Abstain (not their kind of
// credentials). An AuthChain asks them in order and falls back to a
// default decision when all abstain.
//
// The Middleware runs the chain, applies the per-subject rate limit and
// puts the identity and its tenant into the request context. The tenant
// scopes run storage.
package auth
