//go:build devauth

package middleware

import (
	"context"
	"net/http"

	"github.com/sandeepkv93/edu-session-service/internal/observability"
	"github.com/sandeepkv93/edu-session-service/internal/service"
)

// DevIdentity is injected on protected routes when the bypass is active.
var DevIdentity = service.Identity{UserID: "dev-user", Username: "dev"}

func devBypassMiddleware() (func(http.Handler) http.Handler, bool) {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			observability.Audit(r, "auth.request", "outcome", "dev_bypass")
			ctx := context.WithValue(r.Context(), IdentityContextKey, DevIdentity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, true
}
