package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sandeepkv93/edu-session-service/internal/domain"
	"github.com/sandeepkv93/edu-session-service/internal/repository"
	"github.com/sandeepkv93/edu-session-service/internal/security"
	"github.com/sandeepkv93/edu-session-service/internal/service"
)

type stubAuthenticator struct {
	calls int
	id    service.Identity
	err   error
}

func (s *stubAuthenticator) Authenticate(_ context.Context, req service.AuthRequest) (service.Identity, error) {
	s.calls++
	if s.err != nil {
		return service.Identity{}, s.err
	}
	if req.BearerToken == "" || req.ClaimedUserID == "" {
		return service.Identity{}, &service.AuthError{Kind: service.ErrSessionRequired, Reason: service.ReasonMissingCredentials}
	}
	return s.id, nil
}

type singleUser struct{ user *domain.User }

func (s singleUser) FindByIdentity(_ context.Context, identity string) (*domain.User, error) {
	if identity == s.user.Username {
		cp := *s.user
		return &cp, nil
	}
	return nil, repository.ErrUserNotFound
}

func newTestAuthService(t *testing.T) *service.AuthService {
	t.Helper()
	hasher := security.NewHasher(bcrypt.MinCost)
	hash, err := hasher.Hash([]byte("secret-pass"))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	svc, err := service.NewAuthService(service.AuthSettings{
		SigningSecret:    "abcdefghijklmnopqrstuvwxyz123456",
		Issuer:           "iss",
		Audience:         "aud",
		TokenTTL:         time.Hour,
		SessionTTL:       30 * time.Minute,
		EmbedFingerprint: true,
	}, service.NewInMemorySessionStore(), singleUser{&domain.User{ID: "u1", Username: "ana", PasswordHash: hash, Active: true}}, hasher, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	return svc
}

func deviceRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "10.1.1.1:5555"
	req.Header.Set("User-Agent", "test-agent/1.0")
	req.Header.Set("Accept-Language", "es")
	return req
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	if body.Success {
		t.Fatalf("expected failure envelope, got %q", rr.Body.String())
	}
	return body.Error.Message
}

func TestAuthMiddleware(t *testing.T) {
	svc := newTestAuthService(t)
	login, err := svc.Login(context.Background(), service.LoginRequest{
		Identity: "ana",
		Password: "secret-pass",
		Signals:  security.SignalsFromRequest(deviceRequest(http.MethodPost, "/login")),
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	var seen service.Identity
	h := AuthMiddleware(svc, "X-User-Id")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name    string
		mutate  func(*http.Request)
		status  int
		message string
	}{
		{
			name: "valid",
			mutate: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+login.Token)
				r.Header.Set("X-User-Id", "u1")
			},
			status: http.StatusNoContent,
		},
		{
			name: "lower-case scheme",
			mutate: func(r *http.Request) {
				r.Header.Set("Authorization", "bearer "+login.Token)
				r.Header.Set("X-User-Id", "u1")
			},
			status: http.StatusNoContent,
		},
		{
			name:    "missing everything",
			mutate:  func(*http.Request) {},
			status:  http.StatusUnauthorized,
			message: "Sesión requerida",
		},
		{
			name: "missing user header",
			mutate: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+login.Token)
			},
			status:  http.StatusUnauthorized,
			message: "Sesión requerida",
		},
		{
			name: "basic auth scheme",
			mutate: func(r *http.Request) {
				r.Header.Set("Authorization", "Basic "+login.Token)
				r.Header.Set("X-User-Id", "u1")
			},
			status:  http.StatusUnauthorized,
			message: "Sesión requerida",
		},
		{
			name: "other user id",
			mutate: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+login.Token)
				r.Header.Set("X-User-Id", "u2")
			},
			status:  http.StatusUnauthorized,
			message: "Token inválido",
		},
		{
			name: "other device",
			mutate: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+login.Token)
				r.Header.Set("X-User-Id", "u1")
				r.Header.Set("User-Agent", "curl/8.0")
			},
			status:  http.StatusUnauthorized,
			message: "Dispositivo no autorizado",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			seen = service.Identity{}
			req := deviceRequest(http.MethodGet, "/api/v1/me")
			tc.mutate(req)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tc.status, rr.Body.String())
			}
			if tc.status == http.StatusNoContent {
				if seen.UserID != "u1" || seen.Username != "ana" {
					t.Fatalf("unexpected identity in context: %+v", seen)
				}
				return
			}
			if got := errorMessage(t, rr); got != tc.message {
				t.Fatalf("message=%q want %q", got, tc.message)
			}
		})
	}

	if err := svc.Logout(context.Background(), "u1"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	req := deviceRequest(http.MethodGet, "/api/v1/me")
	req.Header.Set("Authorization", "Bearer "+login.Token)
	req.Header.Set("X-User-Id", "u1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized || errorMessage(t, rr) != "Sesión expirada o inválida" {
		t.Fatalf("expected revoked session rejection, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestAuthMiddlewareCustomHeader(t *testing.T) {
	auth := &stubAuthenticator{id: service.Identity{UserID: "u9"}}
	h := AuthMiddleware(auth, "X-Student-Id")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := deviceRequest(http.MethodGet, "/api/v1/me")
	req.Header.Set("Authorization", "Bearer t")
	req.Header.Set("X-Student-Id", "u9")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected configured header to be read, got %d", rr.Code)
	}
}

func TestAuthMiddlewareUnclassifiedErrorRejects(t *testing.T) {
	auth := &stubAuthenticator{err: errors.New("unexpected")}
	called := false
	h := AuthMiddleware(auth, "")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))
	req := deviceRequest(http.MethodGet, "/api/v1/me")
	req.Header.Set("Authorization", "Bearer t")
	req.Header.Set("X-User-Id", "u1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if called || rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected fail-closed 401, called=%v code=%d", called, rr.Code)
	}
}

func TestProtectLogoutServesEndedSessions(t *testing.T) {
	ended := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantNext   bool
	}{
		{name: "live session", wantStatus: http.StatusOK, wantNext: true},
		{name: "session absent", err: &service.AuthError{Kind: service.ErrSessionExpired, Reason: service.ReasonSessionAbsent}, wantStatus: http.StatusNoContent},
		{name: "session replaced", err: &service.AuthError{Kind: service.ErrSessionExpired, Reason: service.ReasonSessionFingerprintMismatch}, wantStatus: http.StatusNoContent},
		{name: "store error", err: &service.AuthError{Kind: service.ErrSessionExpired, Reason: service.ReasonStoreError}, wantStatus: http.StatusUnauthorized},
		{name: "invalid token", err: &service.AuthError{Kind: service.ErrInvalidToken, Reason: service.ReasonInvalidToken}, wantStatus: http.StatusUnauthorized},
		{name: "other device", err: &service.AuthError{Kind: service.ErrFingerprintMismatch, Reason: service.ReasonFingerprintMismatch}, wantStatus: http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			auth := &stubAuthenticator{id: service.Identity{UserID: "u1"}, err: tc.err}
			reached := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
				w.WriteHeader(http.StatusOK)
			})
			req := deviceRequest(http.MethodPost, "/api/v1/auth/logout")
			req.Header.Set("Authorization", "Bearer tok")
			req.Header.Set("X-User-Id", "u1")
			rr := httptest.NewRecorder()
			ProtectLogout(auth, "X-User-Id", false, ended)(next).ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			if reached != tc.wantNext {
				t.Fatalf("next reached=%v want %v", reached, tc.wantNext)
			}
		})
	}
}
