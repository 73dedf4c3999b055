package middleware

import (
	"net/http"
	"strings"

	"github.com/sandeepkv93/edu-session-service/internal/http/response"
	"github.com/sandeepkv93/edu-session-service/internal/observability"
	"github.com/sandeepkv93/edu-session-service/internal/security"
)

const corsAllowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"

// CORS enforces the origin policy on every request. Allowed origins are echoed
// back; rejected origins get a 403 body and no Access-Control-Allow-Origin, and
// the wrapped handler never runs. Pre-flight requests stop here with 200.
func CORS(policy *security.OriginPolicy, userIDHeader string) func(http.Handler) http.Handler {
	allowHeaders := corsAllowHeaders(userIDHeader)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Credentials", "true")

			decision := policy.Evaluate(r.Header.Get("Origin"))
			if !decision.Allowed {
				observability.RecordOriginDecision("rejected", decision.Tier)
				observability.Audit(r, "cors.origin", "outcome", "rejected", "origin", r.Header.Get("Origin"))
				response.Error(w, r, http.StatusForbidden, "ORIGIN_REJECTED", response.MsgOriginRejected)
				return
			}
			observability.RecordOriginDecision("allowed", decision.Tier)
			if decision.Origin != "" {
				h.Set("Access-Control-Allow-Origin", decision.Origin)
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func corsAllowHeaders(userIDHeader string) string {
	headers := []string{"Authorization", "Content-Type", "X-User-Id", "X-Request-Id"}
	if userIDHeader != "" && !strings.EqualFold(userIDHeader, "X-User-Id") {
		headers = append(headers, http.CanonicalHeaderKey(userIDHeader))
	}
	return strings.Join(headers, ", ")
}
