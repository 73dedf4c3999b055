package config

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestClassifyLoadError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "none", err: nil, want: "none"},
		{name: "validation", err: errors.New("validate config: AUTH_SESSION_TTL must be positive"), want: "validation"},
		{name: "production guard", err: errors.New("validate config: DEV_AUTH_BYPASS is not allowed in production"), want: "production_guard"},
		{name: "parse", err: errors.New("parse AUTH_TOKEN_TTL: invalid duration"), want: "parse"},
		{name: "other", err: errors.New("some other load error"), want: "load"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyLoadError(tc.err); got != tc.want {
				t.Fatalf("classifyLoadError()=%q want %q", got, tc.want)
			}
		})
	}
}

func TestClassifyLoadErrorFromValidate(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{"APP_ENV": "production", "DEV_AUTH_BYPASS": "true"}))
	if cfg != nil || err == nil {
		t.Fatal("expected production config without a secret to fail")
	}
	if got := classifyLoadError(err); got != "production_guard" {
		t.Fatalf("expected production_guard, got %q (%v)", got, err)
	}
	if got := countIssues(err); got < 2 {
		t.Fatalf("expected joined issues to be counted, got %d (%v)", got, err)
	}
}

func TestCountIssues(t *testing.T) {
	joined := fmt.Errorf("validate config: %w", errors.Join(errors.New("a"), errors.New("b"), errors.New("c")))
	if got := countIssues(joined); got != 3 {
		t.Fatalf("expected 3 issues, got %d", got)
	}
	if got := countIssues(errors.New("parse X: bad")); got != 1 {
		t.Fatalf("expected single issue, got %d", got)
	}
	if got := countIssues(nil); got != 0 {
		t.Fatalf("expected zero issues for nil, got %d", got)
	}
}

func TestNormalizeAppEnv(t *testing.T) {
	if got := normalizeAppEnv("  ProDuction  "); got != "production" {
		t.Fatalf("expected production, got %q", got)
	}
	if got := normalizeAppEnv("   "); got != "development" {
		t.Fatalf("expected development default, got %q", got)
	}
}

func FuzzNormalizeAppEnvRobustness(f *testing.F) {
	f.Add("  ProD  ")
	f.Add("   ")
	f.Add("")
	f.Add("🔥PROD🔥")
	f.Add(strings.Repeat("A", 4096))

	f.Fuzz(func(t *testing.T, raw string) {
		if len(raw) > 8192 {
			raw = raw[:8192]
		}
		got := normalizeAppEnv(raw)
		if got == "" {
			t.Fatal("normalized app env must not be empty")
		}
		if strings.TrimSpace(raw) == "" && got != "development" {
			t.Fatalf("expected development for blank input, got %q", got)
		}
		if utf8.ValidString(raw) && !utf8.ValidString(got) {
			t.Fatalf("normalized app env must stay valid UTF-8: %q", got)
		}
		if again := normalizeAppEnv(raw); got != again {
			t.Fatalf("normalizeAppEnv must be deterministic: first=%q second=%q", got, again)
		}
	})
}
