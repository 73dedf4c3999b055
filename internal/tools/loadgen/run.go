package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL      string
	Profile      string
	Duration     time.Duration
	RPS          int
	Concurrency  int
	Seed         int64
	Identity     string
	Password     string
	UserIDHeader string
	Client       *http.Client
}

type Result struct {
	TotalRequests int
	Failures      int
	StatusClasses map[string]int
	Endpoints     map[string]int
}

// Summary renders the result as detail lines for the CLI.
func (r Result) Summary() []string {
	lines := []string{fmt.Sprintf("traffic generated total=%d failures=%d", r.TotalRequests, r.Failures)}
	classes := make([]string, 0, len(r.StatusClasses))
	for class := range r.StatusClasses {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	for _, class := range classes {
		lines = append(lines, fmt.Sprintf("status %s=%d", class, r.StatusClasses[class]))
	}
	return lines
}

// errStopped marks requests cut off by the end of the run; they are not counted.
var errStopped = errors.New("run stopped")

type recorder struct {
	mu  sync.Mutex
	res Result
}

func (rec *recorder) record(endpoint string, status int, err error) {
	if errors.Is(err, errStopped) {
		return
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.res.TotalRequests++
	rec.res.Endpoints[endpoint]++
	if err != nil {
		rec.res.Failures++
		rec.res.StatusClasses["error"]++
		return
	}
	class := classifyStatusClass(status)
	rec.res.StatusClasses[class]++
	if class == "5xx" {
		rec.res.Failures++
	}
}

// Run paces requests at cfg.RPS across cfg.Concurrency workers for cfg.Duration.
// Rejections (401, 429) are expected traffic; only transport errors and 5xx
// responses count as failures.
func Run(ctx context.Context, cfg Config) (Result, error) {
	cfg.Profile = normalizeProfile(cfg.Profile)
	if cfg.Profile != "auth" && cfg.Profile != "session" && cfg.Profile != "mixed" {
		return Result{}, fmt.Errorf("unknown profile %q", cfg.Profile)
	}
	if cfg.Profile != "auth" && (cfg.Identity == "" || cfg.Password == "") {
		return Result{}, fmt.Errorf("profile %q needs --identity and --password", cfg.Profile)
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 5 * time.Second
	}
	if cfg.UserIDHeader == "" {
		cfg.UserIDHeader = "X-User-Id"
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 5 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	rec := &recorder{res: Result{StatusClasses: map[string]int{}, Endpoints: map[string]int{}}}
	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	ticks := make(chan struct{})
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer close(ticks)
		ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				select {
				case ticks <- struct{}{}:
				case <-gctx.Done():
					return nil
				}
			}
		}
	})
	for i := 0; i < cfg.Concurrency; i++ {
		w := &worker{cfg: cfg, rec: rec, rng: rand.New(rand.NewSource(cfg.Seed + int64(i)))}
		g.Go(func() error {
			for range ticks {
				w.step(gctx)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rec.res, err
	}
	return rec.res, nil
}

type worker struct {
	cfg    Config
	rec    *recorder
	rng    *rand.Rand
	userID string
	token  string
}

func (w *worker) step(ctx context.Context) {
	switch w.cfg.Profile {
	case "auth":
		w.badLogin(ctx)
	case "session":
		w.sessionCall(ctx)
	default:
		if w.rng.Intn(4) == 0 {
			w.badLogin(ctx)
		} else {
			w.sessionCall(ctx)
		}
	}
}

func (w *worker) badLogin(ctx context.Context) {
	body := map[string]string{"identity": fmt.Sprintf("loadgen-%d", w.rng.Intn(1000)), "password": "invalid"}
	status, _, err := w.send(ctx, http.MethodPost, "/api/v1/auth/login", body, false)
	w.rec.record("login", status, err)
}

func (w *worker) sessionCall(ctx context.Context) {
	if w.token == "" {
		status, data, err := w.send(ctx, http.MethodPost, "/api/v1/auth/login",
			map[string]string{"identity": w.cfg.Identity, "password": w.cfg.Password}, false)
		w.rec.record("login", status, err)
		if err != nil || status != http.StatusOK {
			return
		}
		var login struct {
			UserID string `json:"user_id"`
			Token  string `json:"token"`
		}
		if json.Unmarshal(data, &login) != nil {
			return
		}
		w.userID, w.token = login.UserID, login.Token
		return
	}
	path, name := "/api/v1/auth/session", "session"
	if w.rng.Intn(2) == 0 {
		path, name = "/api/v1/me", "me"
	}
	status, _, err := w.send(ctx, http.MethodGet, path, nil, true)
	w.rec.record(name, status, err)
	if status == http.StatusUnauthorized {
		w.token = ""
	}
}

func (w *worker) send(ctx context.Context, method, path string, body any, authed bool) (int, json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, w.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("User-Agent", "edu-loadgen/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+w.token)
		req.Header.Set(w.cfg.UserIDHeader, w.userID)
	}
	resp, err := w.cfg.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, errStopped
		}
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env.Data, nil
}

func classifyStatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}

func normalizeProfile(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return "mixed"
	}
	return p
}
