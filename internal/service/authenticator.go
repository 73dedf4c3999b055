package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sandeepkv93/edu-session-service/internal/observability"
	"github.com/sandeepkv93/edu-session-service/internal/security"
)

var tracer = otel.Tracer("edu-session-service/internal/service")

// AuthRequest is what a protected request presents.
type AuthRequest struct {
	BearerToken   string
	ClaimedUserID string
	Signals       security.DeviceSignals
}

// Identity is exposed to downstream handlers after a successful authentication.
type Identity struct {
	UserID           string
	Username         string
	SessionExpiresAt time.Time
}

// Authenticator gates protected requests. A request passes only when its token
// verifies, names the claimed user, matches the calling device and maps to a
// live session with the same username and fingerprint. Each success slides
// the session expiry forward.
type Authenticator struct {
	codec      *security.TokenCodec
	store      SessionStore
	sessionTTL time.Duration
}

func NewAuthenticator(codec *security.TokenCodec, store SessionStore, sessionTTL time.Duration) *Authenticator {
	return &Authenticator{codec: codec, store: store, sessionTTL: sessionTTL}
}

func (a *Authenticator) Authenticate(ctx context.Context, req AuthRequest) (Identity, error) {
	ctx, span := tracer.Start(ctx, "Authenticator.Authenticate", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	id, err := a.authenticate(ctx, req)
	if err != nil {
		reason := FailureReason(err)
		span.SetAttributes(attribute.String("auth.reason", reason))
		span.SetStatus(codes.Error, reason)
		observability.RecordAuthDecision("rejected", reason)
		return Identity{}, err
	}
	span.SetAttributes(attribute.String("auth.user_id", id.UserID))
	observability.RecordAuthDecision("authenticated", "ok")
	return id, nil
}

func (a *Authenticator) authenticate(ctx context.Context, req AuthRequest) (Identity, error) {
	bearer := strings.TrimSpace(req.BearerToken)
	claimed := strings.TrimSpace(req.ClaimedUserID)
	if bearer == "" || claimed == "" {
		return Identity{}, reject(ErrSessionRequired, ReasonMissingCredentials)
	}

	// UNVERIFIED -> TOKEN_DECODED
	token, err := a.codec.Verify(bearer)
	if err != nil {
		return Identity{}, rejectWith(ErrInvalidToken, ReasonInvalidToken, err)
	}
	if token.Subject != claimed {
		return Identity{}, reject(ErrInvalidToken, ReasonSubjectMismatch)
	}

	// TOKEN_DECODED -> FINGERPRINT_MATCHED
	current := security.DeriveFingerprint(req.Signals)
	if token.Fingerprint != "" && !sameFingerprint(token.Fingerprint, current) {
		return Identity{}, reject(ErrFingerprintMismatch, ReasonFingerprintMismatch)
	}

	// FINGERPRINT_MATCHED -> SESSION_LIVE
	session, ok, err := a.store.Get(ctx, token.Subject)
	if err != nil {
		return Identity{}, rejectWith(ErrSessionExpired, ReasonStoreError, err)
	}
	if !ok {
		return Identity{}, reject(ErrSessionExpired, ReasonSessionAbsent)
	}
	if err := checkSession(session.Username, session.Fingerprint, token.Username, current); err != nil {
		return Identity{}, err
	}

	// SESSION_LIVE -> AUTHENTICATED
	bind := SessionBinding{Username: token.Username, Fingerprint: current}
	touched, ok, err := a.store.Touch(ctx, token.Subject, bind, a.sessionTTL)
	if err != nil {
		return Identity{}, rejectWith(ErrSessionExpired, ReasonStoreError, err)
	}
	if !ok {
		// Revoked, expired or replaced by another login since Get. Touch
		// leaves a replaced session untouched.
		if touched.UserID != "" {
			if err := checkSession(touched.Username, touched.Fingerprint, token.Username, current); err != nil {
				return Identity{}, err
			}
		}
		return Identity{}, reject(ErrSessionExpired, ReasonSessionExpired)
	}
	return Identity{
		UserID:           token.Subject,
		Username:         touched.Username,
		SessionExpiresAt: touched.ExpiresAt,
	}, nil
}

func checkSession(storedUsername, storedFingerprint, tokenUsername, current string) error {
	if storedUsername != tokenUsername {
		return reject(ErrSessionExpired, ReasonSessionUsernameMismatch)
	}
	if !sameFingerprint(storedFingerprint, current) {
		return reject(ErrSessionExpired, ReasonSessionFingerprintMismatch)
	}
	return nil
}

func sameFingerprint(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// IsAuthFailure reports whether err is a client-attributable authentication rejection.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrSessionRequired) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrFingerprintMismatch) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrInvalidCredentials)
}
