package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/proptrust/pkg/slogx"
)

// Authenticator resolves a raw bearer token to an identity. Implementations
// decide the order of checks (revocation, signature, account state).
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (AuthContext, error)
}

// AuthnMiddleware requires a valid bearer token and stores the resulting
// AuthContext on the request context.
func AuthnMiddleware(a Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			auth, err := a.Authenticate(ctx, raw)
			if err != nil {
				log.Warn("bearer authentication failed", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			ctx = ContextWithAuth(ctx, auth)
			ctx = slogx.WithContext(ctx, log.With("account_id", auth.AccountID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthenticatedFunc is a handler that receives the caller identity explicitly.
type AuthenticatedFunc func(w http.ResponseWriter, r *http.Request, auth AuthContext)

// Authenticated adapts an AuthenticatedFunc to http.Handler. It must sit
// behind AuthnMiddleware; without an identity it answers 401.
func Authenticated(fn AuthenticatedFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, ok := AuthFromContext(r.Context())
		if !ok {
			writeBearerError(w, "missing bearer token")
			return
		}
		fn(w, r, auth)
	})
}

// RequireRole rejects callers whose role is not listed with 403.
func RequireRole(roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, ok := AuthFromContext(r.Context())
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}
			if !auth.HasRole(roles...) {
				WriteError(w, http.StatusForbidden, "insufficient_role", "This action requires role: "+strings.Join(roles, " or "))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if len(authz) < 7 || !strings.EqualFold(authz[:7], "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(authz[7:])
	return raw, raw != ""
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}
