package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sandeepkv93/edu-session-service/internal/domain"
	"github.com/sandeepkv93/edu-session-service/internal/observability"
	"github.com/sandeepkv93/edu-session-service/internal/repository"
	"github.com/sandeepkv93/edu-session-service/internal/security"
)

// UserLookup resolves a login identity (username or email).
// Unknown identities return repository.ErrUserNotFound.
type UserLookup interface {
	FindByIdentity(ctx context.Context, identity string) (*domain.User, error)
}

type PasswordHasher interface {
	Hash(password []byte) (string, error)
	Compare(hash string, password []byte) error
}

type LoginRequest struct {
	Identity string
	Password string
	Signals  security.DeviceSignals
}

type LoginResult struct {
	UserID           string
	Username         string
	Token            string
	ExpiresAt        time.Time
	SessionExpiresAt time.Time
}

// TokenIssuer authenticates credentials and mints a device-bound token and session.
type TokenIssuer struct {
	users            UserLookup
	passwords        PasswordHasher
	store            SessionStore
	codec            *security.TokenCodec
	tokenTTL         time.Duration
	sessionTTL       time.Duration
	embedFingerprint bool

	decoyOnce sync.Once
	decoyHash string
}

func NewTokenIssuer(users UserLookup, passwords PasswordHasher, store SessionStore, codec *security.TokenCodec, settings AuthSettings) *TokenIssuer {
	return &TokenIssuer{
		users:            users,
		passwords:        passwords,
		store:            store,
		codec:            codec,
		tokenTTL:         settings.TokenTTL,
		sessionTTL:       settings.SessionTTL,
		embedFingerprint: settings.EmbedFingerprint,
	}
}

// Login returns ErrInvalidCredentials for both unknown identities and wrong
// passwords. A new login replaces the user's previous session.
func (i *TokenIssuer) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	ctx, span := tracer.Start(ctx, "TokenIssuer.Login", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	res, err := i.login(ctx, req)
	if err != nil {
		status := FailureReason(err)
		span.SetStatus(codes.Error, status)
		observability.RecordAuthLogin(loginStatus(err))
		return nil, err
	}
	span.SetAttributes(attribute.String("auth.user_id", res.UserID))
	observability.RecordAuthLogin("success")
	return res, nil
}

func (i *TokenIssuer) login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	identity := strings.TrimSpace(req.Identity)
	if identity == "" || req.Password == "" {
		return nil, ErrMalformedRequest
	}
	if !i.codec.Configured() {
		return nil, rejectWith(ErrConfigurationMissing, ReasonSigningKeyMissing, security.ErrSigningKeyMissing)
	}

	user, err := i.users.FindByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			i.burnCompare(req.Password)
			return nil, reject(ErrInvalidCredentials, ReasonUnknownIdentity)
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if err := i.passwords.Compare(user.PasswordHash, []byte(req.Password)); err != nil {
		return nil, reject(ErrInvalidCredentials, ReasonBadPassword)
	}
	if !user.Active {
		return nil, reject(ErrInvalidCredentials, ReasonInactiveUser)
	}

	fingerprint := security.DeriveFingerprint(req.Signals)
	claimed := ""
	if i.embedFingerprint {
		claimed = fingerprint
	}
	token, expiresAt, err := i.codec.Issue(user.ID, user.Username, claimed, i.tokenTTL)
	if err != nil {
		if errors.Is(err, security.ErrSigningKeyMissing) {
			return nil, rejectWith(ErrConfigurationMissing, ReasonSigningKeyMissing, err)
		}
		return nil, fmt.Errorf("issue token: %w", err)
	}
	session, err := i.store.Create(ctx, user.ID, user.Username, fingerprint, i.sessionTTL)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &LoginResult{
		UserID:           user.ID,
		Username:         user.Username,
		Token:            token,
		ExpiresAt:        expiresAt,
		SessionExpiresAt: session.ExpiresAt,
	}, nil
}

// Logout drops the user's session. It is a no-op when none exists.
func (i *TokenIssuer) Logout(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		observability.RecordAuthLogout("error")
		return ErrSessionRequired
	}
	if err := i.store.Revoke(ctx, userID); err != nil {
		observability.RecordAuthLogout("error")
		return fmt.Errorf("revoke session: %w", err)
	}
	observability.RecordAuthLogout("success")
	return nil
}

// burnCompare spends a bcrypt comparison on unknown identities so response
// timing does not reveal whether the identity exists.
func (i *TokenIssuer) burnCompare(password string) {
	i.decoyOnce.Do(func() {
		h, err := i.passwords.Hash([]byte("decoy-password-for-unknown-identities"))
		if err == nil {
			i.decoyHash = h
		}
	})
	if i.decoyHash != "" {
		_ = i.passwords.Compare(i.decoyHash, []byte(password))
	}
}

func loginStatus(err error) string {
	switch {
	case errors.Is(err, ErrMalformedRequest):
		return "bad_request"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrConfigurationMissing):
		return "misconfigured"
	default:
		return "error"
	}
}
