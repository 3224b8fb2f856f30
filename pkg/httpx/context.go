package httpx

import (
	"context"
	"slices"
	"time"
)

type ctxKey string

const ctxKeyAuth ctxKey = "auth"

// AuthContext is the verified identity of a bearer-token request. Handlers
// receive it as an explicit argument through Authenticated.
type AuthContext struct {
	AccountID string
	Role      string
	SessionID string
	TokenID   string
	AMR       []string
	ExpiresAt time.Time

	// RawToken is the presented bearer token, needed to blacklist it on logout.
	RawToken string
}

// HasRole reports whether the caller holds one of roles.
func (a AuthContext) HasRole(roles ...string) bool {
	return slices.Contains(roles, a.Role)
}

func ContextWithAuth(ctx context.Context, a AuthContext) context.Context {
	return context.WithValue(ctx, ctxKeyAuth, a)
}

func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	a, ok := ctx.Value(ctxKeyAuth).(AuthContext)
	return a, ok
}
