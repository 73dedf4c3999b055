package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrSigningKeyMissing = errors.New("signing key not configured")
)

type Claims struct {
	Username    string `json:"username"`
	Fingerprint string `json:"fp,omitempty"`
	jwt.RegisteredClaims
}

// VerifiedToken is the result of a successful Verify.
type VerifiedToken struct {
	ID          string
	Subject     string
	Username    string
	Fingerprint string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// TokenCodec signs and verifies HS256 bearer tokens with a process-held secret.
type TokenCodec struct {
	issuer   string
	audience string
	secret   []byte
	now      func() time.Time
}

func NewTokenCodec(issuer, audience string, secret []byte) *TokenCodec {
	return &TokenCodec{
		issuer:   issuer,
		audience: audience,
		secret:   secret,
		now:      time.Now,
	}
}

// WithClock replaces the time source used for issuing and validating tokens.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	if now != nil {
		c.now = now
	}
	return c
}

func (c *TokenCodec) Configured() bool { return len(c.secret) > 0 }

// Issue mints a token for subject. An empty fingerprint is omitted from the claims.
func (c *TokenCodec) Issue(subject, username, fingerprint string, ttl time.Duration) (string, time.Time, error) {
	if !c.Configured() {
		return "", time.Time{}, ErrSigningKeyMissing
	}
	if strings.TrimSpace(subject) == "" {
		return "", time.Time{}, errors.New("token subject is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	now := c.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Username:    username,
		Fingerprint: fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			Audience:  []string{c.audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify rejects malformed tokens, signature mismatches and expired tokens.
// Every failure wraps ErrInvalidToken.
func (c *TokenCodec) Verify(raw string) (*VerifiedToken, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrSigningKeyMissing)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return c.secret, nil
	},
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !tok.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	out := &VerifiedToken{
		ID:          claims.ID,
		Subject:     claims.Subject,
		Username:    claims.Username,
		Fingerprint: claims.Fingerprint,
		ExpiresAt:   claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

// TokenFailureReason classifies a Verify error for logs and metrics.
func TokenFailureReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, ErrSigningKeyMissing):
		return "no_key"
	default:
		return "invalid"
	}
}
