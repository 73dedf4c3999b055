package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/edu-session-service/internal/health"
	"github.com/sandeepkv93/edu-session-service/internal/http/handler"
	"github.com/sandeepkv93/edu-session-service/internal/http/middleware"
	"github.com/sandeepkv93/edu-session-service/internal/http/response"
	"github.com/sandeepkv93/edu-session-service/internal/security"
)

type Dependencies struct {
	AuthHandler       *handler.AuthHandler
	UserHandler       *handler.UserHandler
	Authenticator     middleware.RequestAuthenticator
	UserIDHeader      string
	DevAuthBypass     bool
	OriginPolicy      *security.OriginPolicy
	RateLimitBackend  middleware.Limiter
	LoginRateLimitRPM int
	APIRateLimitRPM   int
	GlobalRateLimiter GlobalRateLimiterFunc
	LoginRateLimiter  LoginRateLimiterFunc
	Readiness         *health.ProbeRunner
	EnableOTelHTTP    bool
}

type GlobalRateLimiterFunc func(http.Handler) http.Handler
type LoginRateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	policy := dep.OriginPolicy
	if policy == nil {
		policy = security.NewOriginPolicy(nil)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(policy, dep.UserIDHeader))
	r.Use(middleware.BodyLimit(1 << 20))

	// Health probes stay outside the API limiter so a limiter backend outage
	// shows up as an unready dependency, not as throttling.
	apiLimiter := dep.GlobalRateLimiter
	if apiLimiter == nil {
		apiLimiter = middleware.NewRateLimiter(dep.RateLimitBackend, dep.APIRateLimitRPM, time.Minute, "api", nil).Middleware()
	}

	loginLimiter := dep.LoginRateLimiter
	if loginLimiter == nil {
		loginLimiter = middleware.NewRateLimiter(dep.RateLimitBackend, dep.LoginRateLimitRPM, time.Minute, "login", nil).Middleware()
	}
	protect := middleware.Protect(dep.Authenticator, dep.UserIDHeader, dep.DevAuthBypass)
	protectLogout := middleware.ProtectLogout(dep.Authenticator, dep.UserIDHeader, dep.DevAuthBypass, http.HandlerFunc(handler.LoggedOut))

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.ErrorWithData(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apiLimiter)
		r.Route("/auth", func(r chi.Router) {
			r.With(loginLimiter).Post("/login", dep.AuthHandler.Login)
			r.With(protectLogout).Post("/logout", dep.AuthHandler.Logout)
			r.With(protect).Get("/session", dep.AuthHandler.Session)
		})
		r.With(protect).Get("/me", dep.UserHandler.Me)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
