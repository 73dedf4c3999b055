//go:build !devauth

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestProtectIgnoresDevBypassWithoutBuildTag(t *testing.T) {
	auth := &stubAuthenticator{}
	h := Protect(auth, "X-User-Id", true)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rr.Code)
	}
	if auth.calls != 1 {
		t.Fatalf("expected authenticator to run, calls=%d", auth.calls)
	}
}
