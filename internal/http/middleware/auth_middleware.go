package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sandeepkv93/edu-session-service/internal/http/response"
	"github.com/sandeepkv93/edu-session-service/internal/observability"
	"github.com/sandeepkv93/edu-session-service/internal/security"
	"github.com/sandeepkv93/edu-session-service/internal/service"
)

type contextKey string

const (
	IdentityContextKey contextKey = "identity"
)

// RequestAuthenticator is satisfied by service.Authenticator and service.AuthService.
type RequestAuthenticator interface {
	Authenticate(ctx context.Context, req service.AuthRequest) (service.Identity, error)
}

// AuthMiddleware requires a bearer token and a claimed-identity header on every
// request and re-authenticates each time. Failures end the request with 401.
func AuthMiddleware(auth RequestAuthenticator, userIDHeader string) func(http.Handler) http.Handler {
	return authGate(auth, userIDHeader, nil)
}

// Protect returns the gate for protected routes. devBypass only takes effect
// in binaries built with the devauth tag.
func Protect(auth RequestAuthenticator, userIDHeader string, devBypass bool) func(http.Handler) http.Handler {
	if mw, ok := bypass(devBypass); ok {
		return mw
	}
	return AuthMiddleware(auth, userIDHeader)
}

// ProtectLogout is Protect for the logout route. A caller whose token verifies
// but whose session has already ended is served by ended instead of a 401.
func ProtectLogout(auth RequestAuthenticator, userIDHeader string, devBypass bool, ended http.Handler) func(http.Handler) http.Handler {
	if mw, ok := bypass(devBypass); ok {
		return mw
	}
	return authGate(auth, userIDHeader, ended)
}

func bypass(devBypass bool) (func(http.Handler) http.Handler, bool) {
	if !devBypass {
		return nil, false
	}
	if mw, ok := devBypassMiddleware(); ok {
		slog.Warn("DEV_AUTH_BYPASS active: protected routes receive a synthetic identity")
		return mw, true
	}
	slog.Warn("DEV_AUTH_BYPASS ignored: binary built without devauth tag")
	return nil, false
}

func authGate(auth RequestAuthenticator, userIDHeader string, ended http.Handler) func(http.Handler) http.Handler {
	if userIDHeader == "" {
		userIDHeader = "X-User-Id"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := auth.Authenticate(r.Context(), service.AuthRequest{
				BearerToken:   bearerToken(r),
				ClaimedUserID: r.Header.Get(userIDHeader),
				Signals:       security.SignalsFromRequest(r),
			})
			if err != nil {
				reason := service.FailureReason(err)
				if ended != nil && service.SessionEnded(err) {
					observability.Audit(r, "auth.request", "outcome", "session_ended", "reason", reason)
					ended.ServeHTTP(w, r)
					return
				}
				slog.WarnContext(r.Context(), "request authentication rejected",
					"reason", reason,
					"path", r.URL.Path,
					"error", err.Error(),
				)
				observability.Audit(r, "auth.request", "outcome", "rejected", "reason", reason)
				if !service.IsAuthFailure(err) {
					// Unclassified failures still reject.
					response.Error(w, r, http.StatusUnauthorized, "SESSION_EXPIRED", response.MsgSessionExpired)
					return
				}
				response.ServiceError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), IdentityContextKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func IdentityFromContext(ctx context.Context) (service.Identity, bool) {
	id, ok := ctx.Value(IdentityContextKey).(service.Identity)
	return id, ok
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
