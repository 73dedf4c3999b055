package domain

import (
	"testing"
	"time"
)

func TestSessionIsLive(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{name: "future", expiresAt: now.Add(time.Second), want: true},
		{name: "exact boundary", expiresAt: now, want: false},
		{name: "past", expiresAt: now.Add(-time.Minute), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Session{UserID: "u1", ExpiresAt: tc.expiresAt}
			if got := s.IsLive(now); got != tc.want {
				t.Fatalf("IsLive()=%v want %v", got, tc.want)
			}
		})
	}
}
