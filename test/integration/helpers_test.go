package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/sandeepkv93/edu-session-service/internal/database"
	"github.com/sandeepkv93/edu-session-service/internal/domain"
	"github.com/sandeepkv93/edu-session-service/internal/health"
	"github.com/sandeepkv93/edu-session-service/internal/http/handler"
	"github.com/sandeepkv93/edu-session-service/internal/http/middleware"
	"github.com/sandeepkv93/edu-session-service/internal/http/router"
	"github.com/sandeepkv93/edu-session-service/internal/repository"
	"github.com/sandeepkv93/edu-session-service/internal/security"
	"github.com/sandeepkv93/edu-session-service/internal/service"
)

const (
	sharedSecret = "integration-signing-secret-0123456789"
	testPassword = "Valid#Pass1234"
)

// backing holds the state shared by every service instance in a test:
// one user database and one redis.
type backing struct {
	db    *gorm.DB
	redis *miniredis.Miniredis
}

func newBacking(t *testing.T) *backing {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, "sqlite", "file:"+filepath.Join(t.TempDir(), "integration.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	hash, err := security.NewHasher(bcrypt.MinCost).Hash([]byte(testPassword))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	repo := repository.NewUserRepository(db)
	for _, u := range []*domain.User{
		{Username: "ana", Email: "ana@example.edu", PasswordHash: hash, Active: true},
		{Username: "ben", Email: "ben@example.edu", PasswordHash: hash, Active: true},
		{Username: "off", Email: "off@example.edu", PasswordHash: hash, Active: false},
	} {
		if err := repo.Create(ctx, u); err != nil {
			t.Fatalf("seed %s: %v", u.Username, err)
		}
	}
	return &backing{db: db, redis: miniredis.RunT(t)}
}

type instanceOptions struct {
	secret        string
	sessionTTL    time.Duration
	loginLimitRPM int
}

// newInstance starts one API process over the shared backing.
func (b *backing) newInstance(t *testing.T, opts instanceOptions) *httptest.Server {
	t.Helper()
	if opts.secret == "" {
		opts.secret = sharedSecret
	}
	if opts.sessionTTL == 0 {
		opts.sessionTTL = 30 * time.Minute
	}
	if opts.loginLimitRPM == 0 {
		opts.loginLimitRPM = 1000
	}
	rdb := redis.NewClient(&redis.Options{Addr: b.redis.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	auth, err := service.NewAuthService(service.AuthSettings{
		SigningSecret:    opts.secret,
		Issuer:           "edu-session-service",
		Audience:         "edu-platform",
		TokenTTL:         24 * time.Hour,
		SessionTTL:       opts.sessionTTL,
		EmbedFingerprint: true,
	}, service.NewRedisSessionStore(rdb, "it"), repository.NewUserRepository(b.db), security.NewHasher(bcrypt.MinCost), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}

	db := b.db
	readiness := health.NewProbeRunner(time.Second, 0,
		health.CheckFunc{Name: "db", Fn: func(ctx context.Context) error { return database.Ping(ctx, db, time.Second) }},
		health.CheckFunc{Name: "redis", Fn: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)
	srv := httptest.NewServer(router.NewRouter(router.Dependencies{
		AuthHandler:       handler.NewAuthHandler(auth),
		UserHandler:       handler.NewUserHandler(),
		Authenticator:     auth,
		UserIDHeader:      "X-User-Id",
		OriginPolicy:      security.NewOriginPolicy([]string{"https://campus.example.edu"}),
		RateLimitBackend:  middleware.NewRedisFixedWindowLimiter(rdb, "it"),
		LoginRateLimitRPM: opts.loginLimitRPM,
		APIRateLimitRPM:   10000,
		Readiness:         readiness,
	}))
	t.Cleanup(srv.Close)
	return srv
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type device struct {
	userAgent string
	language  string
}

var laptop = device{userAgent: "Mozilla/5.0 (X11; Linux x86_64) Firefox/130.0", language: "es-ES"}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, dev device, headers map[string]string, body string) (*http.Response, envelope) {
	t.Helper()
	resp, env, err := send(srv, method, path, dev, headers, body)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp, env
}

// send is the goroutine-safe form of doJSON.
func send(srv *httptest.Server, method, path string, dev device, headers map[string]string, body string) (*http.Response, envelope, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		return nil, envelope{}, err
	}
	req.Header.Set("User-Agent", dev.userAgent)
	req.Header.Set("Accept-Language", dev.language)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		return nil, envelope{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	var env envelope
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, envelope{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, envelope{}, fmt.Errorf("decode body %q: %w", raw, err)
		}
	}
	return resp, env, nil
}

type credentials struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

func login(t *testing.T, srv *httptest.Server, dev device, identity string) credentials {
	t.Helper()
	resp, env := doJSON(t, srv, http.MethodPost, "/api/v1/auth/login", dev, nil,
		`{"identity":"`+identity+`","password":"`+testPassword+`"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d", identity, resp.StatusCode)
	}
	var c credentials
	if err := json.Unmarshal(env.Data, &c); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return c
}

func (c credentials) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.Token, "X-User-Id": c.UserID}
}
