package httpapi

import (
	"net/http"
	"strings"

	"slatesign.org/internal/auth"
)

// Paths reachable without a bearer token.
var publicPaths = map[string]bool{
	"/healthz":       true,
	"/readyz":        true,
	"/metrics":       true,
	"/v1/info":       true,
	"/v1/auth/token": true,
}

// withAuth validates the bearer token and stashes the account identity in
// the request context. Public paths pass through untouched.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		claims, err := auth.ParseAndValidate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		ctx := auth.ContextWithAccount(r.Context(), claims.Subject, claims.Roles, claims.Plan)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
