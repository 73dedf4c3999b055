package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/sandeepkv93/edu-session-service/internal/security"
)

// AuthSettings configures an AuthService.
type AuthSettings struct {
	SigningSecret        string
	AllowEphemeralSecret bool
	Issuer               string
	Audience             string
	TokenTTL             time.Duration
	SessionTTL           time.Duration
	EmbedFingerprint     bool
}

// AuthService owns the signing secret, the session store and the components
// built on them. Each instance is independent; nothing is process-global.
type AuthService struct {
	Codec         *security.TokenCodec
	Store         SessionStore
	Authenticator *Authenticator
	Issuer        *TokenIssuer

	ephemeral bool
}

func NewAuthService(settings AuthSettings, store SessionStore, users UserLookup, passwords PasswordHasher, logger *slog.Logger) (*AuthService, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if settings.TokenTTL <= 0 || settings.SessionTTL <= 0 {
		return nil, errors.New("token and session ttl must be positive")
	}
	secret, ephemeral, err := security.ResolveSigningSecret(settings.SigningSecret, settings.AllowEphemeralSecret)
	if err != nil {
		return nil, err
	}
	switch {
	case ephemeral:
		logger.Warn("using ephemeral token signing secret; tokens will not survive restarts or verify on other instances")
	case secret == nil:
		logger.Error("no token signing secret configured; logins will fail")
	}
	codec := security.NewTokenCodec(settings.Issuer, settings.Audience, secret)
	return &AuthService{
		Codec:         codec,
		Store:         store,
		Authenticator: NewAuthenticator(codec, store, settings.SessionTTL),
		Issuer:        NewTokenIssuer(users, passwords, store, codec, settings),
		ephemeral:     ephemeral,
	}, nil
}

func (s *AuthService) EphemeralSecret() bool { return s.ephemeral }

func (s *AuthService) Authenticate(ctx context.Context, req AuthRequest) (Identity, error) {
	return s.Authenticator.Authenticate(ctx, req)
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	return s.Issuer.Login(ctx, req)
}

func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return s.Issuer.Logout(ctx, userID)
}

// Close releases the session store when it owns resources.
func (s *AuthService) Close() error {
	if c, ok := s.Store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
