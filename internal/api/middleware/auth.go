package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mcoot/rankdir/internal/api/apierr"
	"github.com/mcoot/rankdir/internal/services/auth"
)

// FlowHandleHeader carries the handle of a pending authentication flow
const FlowHandleHeader = "X-Flow-Token"

type contextKey string

const principalContextKey contextKey = "principal"

// RequireCredential rejects requests without a credential for an authorized session
func RequireCredential(authService *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			principal, err := authService.Authorize(r.Context(), token)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the credential from the Authorization header
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// FlowHandle extracts the flow handle header
func FlowHandle(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(FlowHandleHeader))
}

// GetPrincipal returns the authorized principal from the request context
func GetPrincipal(ctx context.Context) *auth.Principal {
	principal, _ := ctx.Value(principalContextKey).(*auth.Principal)
	return principal
}
