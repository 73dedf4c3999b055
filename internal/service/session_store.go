package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sandeepkv93/edu-session-service/internal/domain"
	"github.com/sandeepkv93/edu-session-service/internal/observability"
)

// SessionStore holds at most one live session per user. Implementations must
// serialize Create, Touch and Revoke for the same user so a revoked session
// cannot be touched back to life.
type SessionStore interface {
	// Create inserts or overwrites the user's session with expiry now+ttl.
	Create(ctx context.Context, userID, username, fingerprint string, ttl time.Duration) (domain.Session, error)
	// Get returns the live session. Expired entries are reported absent.
	Get(ctx context.Context, userID string) (domain.Session, bool, error)
	// Touch slides a live session's expiry to now+ttl if it is still bound to
	// bind. Absent or expired sessions yield a zero Session and false. A live
	// session bound to another username or fingerprint is returned unchanged
	// with false.
	Touch(ctx context.Context, userID string, bind SessionBinding, ttl time.Duration) (domain.Session, bool, error)
	// Revoke deletes the session. Revoking an absent session is not an error.
	Revoke(ctx context.Context, userID string) error
}

// SessionBinding is what a request expects the stored session to carry.
type SessionBinding struct {
	Username    string
	Fingerprint string
}

func (b SessionBinding) matches(s domain.Session) bool {
	return s.Username == b.Username && sameFingerprint(s.Fingerprint, b.Fingerprint)
}

var errInvalidSessionTTL = errors.New("session ttl must be positive")

func validateSessionArgs(userID string, ttl time.Duration) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("session user id is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: %s", errInvalidSessionTTL, ttl)
	}
	return nil
}

const sessionBackendMemory = "memory"

type InMemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	now      func() time.Time
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		sessions: make(map[string]domain.Session),
		now:      time.Now,
	}
}

func (s *InMemorySessionStore) WithClock(now func() time.Time) *InMemorySessionStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *InMemorySessionStore) Create(_ context.Context, userID, username, fingerprint string, ttl time.Duration) (domain.Session, error) {
	if err := validateSessionArgs(userID, ttl); err != nil {
		observability.RecordSessionStoreOperation(sessionBackendMemory, "create", "error")
		return domain.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session := domain.Session{
		UserID:      userID,
		Username:    username,
		Fingerprint: fingerprint,
		ExpiresAt:   s.now().Add(ttl),
	}
	s.sessions[userID] = session
	observability.RecordSessionStoreOperation(sessionBackendMemory, "create", "ok")
	return session, nil
}

func (s *InMemorySessionStore) Get(_ context.Context, userID string) (domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.liveLocked(userID)
	observability.RecordSessionStoreOperation(sessionBackendMemory, "get", hitOutcome(ok))
	return session, ok, nil
}

func (s *InMemorySessionStore) Touch(_ context.Context, userID string, bind SessionBinding, ttl time.Duration) (domain.Session, bool, error) {
	if ttl <= 0 {
		observability.RecordSessionStoreOperation(sessionBackendMemory, "touch", "error")
		return domain.Session{}, false, fmt.Errorf("%w: %s", errInvalidSessionTTL, ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.liveLocked(userID)
	if !ok {
		observability.RecordSessionStoreOperation(sessionBackendMemory, "touch", "miss")
		return domain.Session{}, false, nil
	}
	if !bind.matches(session) {
		observability.RecordSessionStoreOperation(sessionBackendMemory, "touch", "mismatch")
		return session, false, nil
	}
	session.ExpiresAt = s.now().Add(ttl)
	s.sessions[userID] = session
	observability.RecordSessionStoreOperation(sessionBackendMemory, "touch", "hit")
	return session, true, nil
}

func (s *InMemorySessionStore) Revoke(_ context.Context, userID string) error {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
	observability.RecordSessionStoreOperation(sessionBackendMemory, "revoke", "ok")
	return nil
}

// Len reports the number of stored entries, including expired ones not yet read.
func (s *InMemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *InMemorySessionStore) liveLocked(userID string) (domain.Session, bool) {
	session, ok := s.sessions[userID]
	if !ok {
		return domain.Session{}, false
	}
	if !session.IsLive(s.now()) {
		delete(s.sessions, userID)
		return domain.Session{}, false
	}
	return session, true
}

func hitOutcome(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}
