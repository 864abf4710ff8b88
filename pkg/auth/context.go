package auth

import "context"

type identityKey struct{}

// SetIdentity returns a copy of ctx carrying id.
func SetIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity set by the middleware, or nil
// for requests that bypassed authentication.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// Subject returns the subject of the context identity, or "" when there is
// none. Used to attribute log lines.
func Subject(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil {
		return id.Subject
	}
	return ""
}
