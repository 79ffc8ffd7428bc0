package auth

import (
	"context"

	"github.com/taskboard/taskboard/internal/model"
)

type ctxKey struct{}

var authContextKey ctxKey

// ContextWithAuth adds AuthContext to the context.
func ContextWithAuth(ctx context.Context, auth *model.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, auth)
}

// AuthFromContext retrieves AuthContext from the context.
// A nil result means the caller is anonymous.
func AuthFromContext(ctx context.Context) *model.AuthContext {
	auth, ok := ctx.Value(authContextKey).(*model.AuthContext)
	if !ok {
		return nil
	}
	return auth
}

// Anonymous reports whether ctx carries no authenticated caller.
func Anonymous(ctx context.Context) bool {
	return AuthFromContext(ctx) == nil
}
