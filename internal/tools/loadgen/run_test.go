package loadgen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestClassifyStatusClass(t *testing.T) {
	cases := map[int]string{
		200: "2xx",
		302: "3xx",
		404: "4xx",
		500: "5xx",
		100: "other",
	}
	for status, want := range cases {
		if got := classifyStatusClass(status); got != want {
			t.Fatalf("classifyStatusClass(%d)=%q want %q", status, got, want)
		}
	}
}

func TestNormalizeProfile(t *testing.T) {
	if got := normalizeProfile(""); got != "mixed" {
		t.Fatalf("normalizeProfile empty=%q want mixed", got)
	}
	if got := normalizeProfile("  AUTH  "); got != "auth" {
		t.Fatalf("normalizeProfile auth=%q want auth", got)
	}
}

func TestRunAgainstStubServer(t *testing.T) {
	var mu sync.Mutex
	hits := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/auth/login":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["identity"] == "ana" {
				_, _ = w.Write([]byte(`{"success":true,"data":{"user_id":"u1","token":"tok"}}`))
				return
			}
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":{"code":"INVALID_CREDENTIALS","message":"x"}}`))
		default:
			if r.Header.Get("Authorization") != "Bearer tok" || r.Header.Get("X-User-Id") != "u1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"success":true,"data":{}}`))
		}
	}))
	defer srv.Close()

	res, err := Run(context.Background(), Config{
		BaseURL:     srv.URL,
		Profile:     "mixed",
		Duration:    300 * time.Millisecond,
		RPS:         50,
		Concurrency: 2,
		Seed:        7,
		Identity:    "ana",
		Password:    "pw",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.TotalRequests == 0 {
		t.Fatal("expected some traffic")
	}
	if res.Failures != 0 {
		t.Fatalf("expected no failures, got %d (%v)", res.Failures, res.StatusClasses)
	}
	if res.StatusClasses["5xx"] != 0 || res.StatusClasses["2xx"] == 0 {
		t.Fatalf("unexpected status classes %v", res.StatusClasses)
	}
	if len(res.Summary()) < 2 {
		t.Fatalf("expected summary lines, got %v", res.Summary())
	}
}

func TestRunValidatesProfile(t *testing.T) {
	if _, err := Run(context.Background(), Config{Profile: "bogus"}); err == nil {
		t.Fatal("expected unknown profile error")
	}
	if _, err := Run(context.Background(), Config{Profile: "session"}); err == nil {
		t.Fatal("expected credentials error for session profile")
	}
}
