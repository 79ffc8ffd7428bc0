package middleware

import (
	"fmt"
	"net/http"

	"github.com/taskboard/taskboard/internal/auth"
)

// RequireAuthenticated refuses anonymous callers with 403.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.Anonymous(r.Context()) {
			writeError(w, http.StatusForbidden, CodeForbidden, "Authentication credentials were not provided.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireScope returns middleware that enforces scope requirements.
// Having any one of required is sufficient; admin grants everything.
// Anonymous callers are refused with 403.
func RequireScope(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.AuthFromContext(r.Context())
			if authCtx == nil {
				writeError(w, http.StatusForbidden, CodeForbidden, "Authentication credentials were not provided.")
				return
			}

			for _, scope := range required {
				if authCtx.HasScope(scope) {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeError(w, http.StatusForbidden, CodeForbidden,
				fmt.Sprintf("Insufficient permissions. Required scope: %s", required[0]))
		})
	}
}
