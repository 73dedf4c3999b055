package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sandeepkv93/edu-session-service/internal/http/response"
	"github.com/sandeepkv93/edu-session-service/internal/observability"
	"github.com/sandeepkv93/edu-session-service/internal/security"
)

type Decision struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RateLimitPolicy allows Limit requests per key in each Window. Windows are
// aligned to multiples of Window since the Unix epoch.
type RateLimitPolicy struct {
	Limit  int
	Window time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string, policy RateLimitPolicy) (Decision, error)
}

type LocalFixedWindowLimiter struct {
	mu        sync.Mutex
	windows   map[string]*fixedWindow
	now       func() time.Time
	nextSweep time.Time
}

type fixedWindow struct {
	start  time.Time
	window time.Duration
	count  int
}

func NewLocalFixedWindowLimiter() *LocalFixedWindowLimiter {
	return &LocalFixedWindowLimiter{
		windows: make(map[string]*fixedWindow),
		now:     time.Now,
	}
}

func (l *LocalFixedWindowLimiter) WithClock(now func() time.Time) *LocalFixedWindowLimiter {
	if now != nil {
		l.now = now
	}
	return l
}

func (l *LocalFixedWindowLimiter) Allow(_ context.Context, key string, policy RateLimitPolicy) (Decision, error) {
	policy = normalizePolicy(policy)
	now := l.now()
	start := now.Truncate(policy.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.nextSweep) {
		for k, w := range l.windows {
			if !w.start.Add(w.window).After(now) {
				delete(l.windows, k)
			}
		}
		l.nextSweep = now.Add(policy.Window)
	}

	w, ok := l.windows[key]
	if !ok || !w.start.Equal(start) || w.window != policy.Window {
		w = &fixedWindow{start: start, window: policy.Window}
		l.windows[key] = w
	}
	w.count++
	return decide(w.count, policy, start, now), nil
}

func decide(count int, policy RateLimitPolicy, start, now time.Time) Decision {
	resetAt := start.Add(policy.Window)
	d := Decision{
		Allowed:   count <= policy.Limit,
		Remaining: max(policy.Limit-count, 0),
		ResetAt:   resetAt,
	}
	if !d.Allowed {
		d.RetryAfter = resetAt.Sub(now)
	}
	return d
}

type RateLimiter struct {
	limiter Limiter
	policy  RateLimitPolicy
	scope   string
	keyFunc func(r *http.Request) string
}

// NewRateLimiter builds a per-client limiter. keyFunc defaults to the client IP.
func NewRateLimiter(limiter Limiter, limit int, window time.Duration, scope string, keyFunc func(r *http.Request) string) *RateLimiter {
	if limiter == nil {
		limiter = NewLocalFixedWindowLimiter()
	}
	if scope == "" {
		scope = "api"
	}
	if keyFunc == nil {
		keyFunc = security.ClientIP
	}
	return &RateLimiter{
		limiter: limiter,
		policy:  normalizePolicy(RateLimitPolicy{Limit: limit, Window: window}),
		scope:   scope,
		keyFunc: keyFunc,
	}
}

// Middleware rejects over-limit requests with 429. Backend errors also reject.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rl.scope + ":" + rl.keyFunc(r)
			decision, err := rl.limiter.Allow(r.Context(), key, rl.policy)
			if err != nil {
				observability.RecordRateLimitDecision(rl.scope, "backend_error")
				slog.WarnContext(r.Context(), "rate limiter backend unavailable, rejecting request",
					"scope", rl.scope,
					"error", err.Error(),
				)
				writeRateLimitHeaders(w.Header(), rl.policy.Limit, 0, time.Now().Add(rl.policy.Window))
				w.Header().Set("Retry-After", retryAfterHeader(rl.policy.Window))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", response.MsgRateLimited)
				return
			}
			writeRateLimitHeaders(w.Header(), rl.policy.Limit, decision.Remaining, decision.ResetAt)
			if !decision.Allowed {
				observability.RecordRateLimitDecision(rl.scope, "denied")
				w.Header().Set("Retry-After", retryAfterHeader(decision.RetryAfter))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", response.MsgRateLimited)
				return
			}
			observability.RecordRateLimitDecision(rl.scope, "allowed")
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterHeader(d time.Duration) string {
	seconds := int((d + time.Second - 1) / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

func writeRateLimitHeaders(h http.Header, limit int, remaining int, resetAt time.Time) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(max(limit, 0)))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

func normalizePolicy(policy RateLimitPolicy) RateLimitPolicy {
	if policy.Limit <= 0 {
		policy.Limit = 1
	}
	if policy.Window <= 0 {
		policy.Window = time.Minute
	}
	return policy
}
