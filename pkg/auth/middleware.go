package auth

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/observability"
	"github.com/rhuss/codinit/pkg/storage"
	"github.com/rhuss/codinit/pkg/transport"
)

// DefaultBypassEndpoints are served without credentials.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}

// Middleware authenticates every request outside bypass with chain. An
// accepted request carries its Identity and, when the identity names one,
// its tenant. limiter may be nil.
func Middleware(chain *AuthChain, limiter RateLimiter, bypass []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(bypass, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			id, ok := authenticate(w, r, chain)
			if !ok {
				return
			}
			if limiter != nil {
				if err := limiter.Allow(r.Context(), id); err != nil {
					slog.Warn("rate limit exceeded", "subject", id.Subject)
					observability.RateLimitRejectedTotal.WithLabelValues(tenantLabel(id)).Inc()
					transport.WriteAPIError(w, api.NewTooManyRequestsError("rate limit exceeded"))
					return
				}
			}

			ctx := SetIdentity(r.Context(), id)
			if tenant := id.TenantID(); tenant != "" {
				ctx = storage.SetTenant(ctx, tenant)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticate writes the error response itself when it returns false.
func authenticate(w http.ResponseWriter, r *http.Request, chain *AuthChain) (*Identity, bool) {
	res := chain.Authenticate(r.Context(), r)
	if res.Decision != Yes || res.Identity == nil {
		slog.Warn("authentication failed",
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"decision", res.Decision.String(),
			"error", res.Err)
		w.Header().Set("WWW-Authenticate", `Bearer realm="codinit"`)
		transport.WriteAPIError(w, api.NewUnauthorizedError("authentication required"))
		return nil, false
	}
	if res.Identity.Subject == "" {
		slog.Error("authenticator accepted a request without a subject", "path", r.URL.Path)
		transport.WriteAPIError(w, api.NewServerError("internal authentication error"))
		return nil, false
	}
	slog.Debug("authenticated", "subject", res.Identity.Subject, "path", r.URL.Path)
	return res.Identity, true
}

func tenantLabel(id *Identity) string {
	if t := id.TenantID(); t != "" {
		return t
	}
	return "default"
}
