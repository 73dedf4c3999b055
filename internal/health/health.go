package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type CheckResult struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

// CheckFunc adapts a ping-style function into a Checker.
type CheckFunc struct {
	Name string
	Fn   func(ctx context.Context) error
}

func (c CheckFunc) Check(ctx context.Context) CheckResult {
	if err := c.Fn(ctx); err != nil {
		return CheckResult{Name: c.Name, Healthy: false, Error: err.Error()}
	}
	return CheckResult{Name: c.Name, Healthy: true}
}

// ProbeRunner runs readiness checks in parallel. Results are cached for
// cacheTTL so frequent probes do not hammer dependencies; a zero TTL disables caching.
type ProbeRunner struct {
	timeout  time.Duration
	cacheTTL time.Duration
	checkers []Checker
	now      func() time.Time

	mu       sync.Mutex
	cachedAt time.Time
	cached   []CheckResult
	ready    bool
}

func NewProbeRunner(timeout, cacheTTL time.Duration, checkers ...Checker) *ProbeRunner {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &ProbeRunner{timeout: timeout, cacheTTL: cacheTTL, checkers: checkers, now: time.Now}
}

func (p *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	p.mu.Lock()
	if p.cacheTTL > 0 && p.cached != nil && p.now().Sub(p.cachedAt) < p.cacheTTL {
		ready, results := p.ready, append([]CheckResult(nil), p.cached...)
		p.mu.Unlock()
		return ready, results
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	results := make([]CheckResult, len(p.checkers))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range p.checkers {
		g.Go(func() error {
			start := p.now()
			res := runCheck(gctx, c)
			res.LatencyMS = p.now().Sub(start).Milliseconds()
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	ready := true
	for _, r := range results {
		if !r.Healthy {
			ready = false
		}
	}

	p.mu.Lock()
	p.cached, p.cachedAt, p.ready = results, p.now(), ready
	p.mu.Unlock()
	return ready, append([]CheckResult(nil), results...)
}

// runCheck bounds a checker by ctx even if it ignores cancellation.
func runCheck(ctx context.Context, c Checker) CheckResult {
	done := make(chan CheckResult, 1)
	go func() { done <- c.Check(ctx) }()
	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return CheckResult{Name: checkerName(c), Healthy: false, Error: ctx.Err().Error()}
	}
}

func checkerName(c Checker) string {
	if cf, ok := c.(CheckFunc); ok {
		return cf.Name
	}
	return "unknown"
}
