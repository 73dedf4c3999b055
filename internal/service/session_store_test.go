package service

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var anaFP1 = SessionBinding{Username: "ana", Fingerprint: "fp-1"}

// exerciseSessionStore checks the contract shared by every SessionStore backend.
func exerciseSessionStore(t *testing.T, store SessionStore, clock *fakeClock) {
	t.Helper()
	ctx := context.Background()
	ttl := 30 * time.Minute

	created, err := store.Create(ctx, "u1", "ana", "fp-1", ttl)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created.ExpiresAt.Equal(clock.Now().Add(ttl)) {
		t.Fatalf("create expiresAt=%v want %v", created.ExpiresAt, clock.Now().Add(ttl))
	}

	got, ok, err := store.Get(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("get after create: ok=%v err=%v", ok, err)
	}
	if got.Username != "ana" || got.Fingerprint != "fp-1" || got.UserID != "u1" {
		t.Fatalf("unexpected session: %+v", got)
	}

	clock.Advance(20 * time.Minute)
	touched, ok, err := store.Touch(ctx, "u1", anaFP1, ttl)
	if err != nil || !ok {
		t.Fatalf("touch: ok=%v err=%v", ok, err)
	}
	if !touched.ExpiresAt.Equal(clock.Now().Add(ttl)) {
		t.Fatalf("touch expiresAt=%v want %v", touched.ExpiresAt, clock.Now().Add(ttl))
	}
	if touched.Username != "ana" || touched.Fingerprint != "fp-1" {
		t.Fatalf("touch lost fields: %+v", touched)
	}

	// Overwrite on new login.
	if _, err := store.Create(ctx, "u1", "ana", "fp-2", ttl); err != nil {
		t.Fatalf("recreate: %v", err)
	}
	got, ok, err = store.Get(ctx, "u1")
	if err != nil || !ok || got.Fingerprint != "fp-2" {
		t.Fatalf("expected overwritten session, got %+v ok=%v err=%v", got, ok, err)
	}

	// Touch does not extend a session bound to another device.
	stale, ok, err := store.Touch(ctx, "u1", anaFP1, ttl)
	if err != nil || ok {
		t.Fatalf("touch with stale binding: ok=%v err=%v", ok, err)
	}
	if stale.Fingerprint != "fp-2" || !stale.ExpiresAt.Equal(got.ExpiresAt) {
		t.Fatalf("stale touch must return the stored session unchanged, got %+v want %+v", stale, got)
	}

	// Expiry is lazy and touch does not revive.
	clock.Advance(ttl)
	if _, ok, err := store.Touch(ctx, "u1", SessionBinding{Username: "ana", Fingerprint: "fp-2"}, ttl); err != nil || ok {
		t.Fatalf("touch after expiry: ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.Get(ctx, "u1"); err != nil || ok {
		t.Fatalf("get after expiry: ok=%v err=%v", ok, err)
	}

	// Revoke is idempotent and touch cannot revive a revoked session.
	if _, err := store.Create(ctx, "u2", "ben", "fp-3", ttl); err != nil {
		t.Fatalf("create u2: %v", err)
	}
	if err := store.Revoke(ctx, "u2"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := store.Revoke(ctx, "u2"); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if _, ok, err := store.Touch(ctx, "u2", SessionBinding{Username: "ben", Fingerprint: "fp-3"}, ttl); err != nil || ok {
		t.Fatalf("touch after revoke: ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.Get(ctx, "u2"); err != nil || ok {
		t.Fatalf("get after revoke: ok=%v err=%v", ok, err)
	}

	if _, err := store.Create(ctx, "", "x", "", ttl); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if _, err := store.Create(ctx, "u3", "x", "", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
	if _, _, err := store.Touch(ctx, "u3", SessionBinding{}, -time.Second); err == nil {
		t.Fatal("expected error for negative touch ttl")
	}
}

func TestInMemorySessionStoreContract(t *testing.T) {
	clock := newFakeClock()
	exerciseSessionStore(t, NewInMemorySessionStore().WithClock(clock.Now), clock)
}

func TestInMemorySessionStoreDropsExpiredEntryOnRead(t *testing.T) {
	clock := newFakeClock()
	store := NewInMemorySessionStore().WithClock(clock.Now)
	ctx := context.Background()
	if _, err := store.Create(ctx, "u1", "ana", "", time.Minute); err != nil {
		t.Fatalf("create: %v", err)
	}
	clock.Advance(time.Minute)
	if store.Len() != 1 {
		t.Fatalf("expired entry should linger until read, len=%d", store.Len())
	}
	if _, ok, _ := store.Get(ctx, "u1"); ok {
		t.Fatal("expected expired session to be absent")
	}
	if store.Len() != 0 {
		t.Fatalf("expected expired entry removed on read, len=%d", store.Len())
	}
}

func TestInMemorySessionStoreConcurrentAccess(t *testing.T) {
	store := NewInMemorySessionStore()
	ctx := context.Background()
	if _, err := store.Create(ctx, "u1", "ana", "fp", time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 4 {
			case 0:
				_, _, _ = store.Touch(ctx, "u1", SessionBinding{Username: "ana", Fingerprint: "fp"}, time.Hour)
			case 1:
				_, _, _ = store.Get(ctx, "u1")
			case 2:
				_, _ = store.Create(ctx, "u1", "ana", "fp", time.Hour)
			default:
				_ = store.Revoke(ctx, "u1")
			}
		}(i)
	}
	wg.Wait()

	if err := store.Revoke(ctx, "u1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, ok, _ := store.Touch(ctx, "u1", SessionBinding{Username: "ana", Fingerprint: "fp"}, time.Hour); ok {
		t.Fatal("revoked session must not be revived by touch")
	}
}
