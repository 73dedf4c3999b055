package service

import "errors"

var (
	ErrMalformedRequest     = errors.New("malformed request")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrSessionRequired      = errors.New("session required")
	ErrInvalidToken         = errors.New("invalid token")
	ErrFingerprintMismatch  = errors.New("device not authorized")
	ErrSessionExpired       = errors.New("session expired or invalid")
	ErrConfigurationMissing = errors.New("authentication not configured")
)

// Reason codes attached to authentication failures. They are logged and
// recorded as metric attributes, never returned to clients.
const (
	ReasonMissingCredentials         = "missing_credentials"
	ReasonInvalidToken               = "invalid_token"
	ReasonSubjectMismatch            = "subject_mismatch"
	ReasonFingerprintMismatch        = "fingerprint_mismatch"
	ReasonSessionAbsent              = "session_absent"
	ReasonSessionExpired             = "session_expired"
	ReasonSessionUsernameMismatch    = "session_username_mismatch"
	ReasonSessionFingerprintMismatch = "session_fingerprint_mismatch"
	ReasonStoreError                 = "store_error"
	ReasonUnknownIdentity            = "unknown_identity"
	ReasonInactiveUser               = "inactive_user"
	ReasonBadPassword                = "bad_password"
	ReasonSigningKeyMissing          = "signing_key_missing"
)

// AuthError is a classified authentication failure. Kind is one of the
// package sentinels; Reason is the internal log code.
type AuthError struct {
	Kind   error
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return e.Kind.Error() + " (" + e.Reason + "): " + e.Err.Error()
	}
	return e.Kind.Error() + " (" + e.Reason + ")"
}

func (e *AuthError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func reject(kind error, reason string) *AuthError {
	return &AuthError{Kind: kind, Reason: reason}
}

func rejectWith(kind error, reason string, err error) *AuthError {
	return &AuthError{Kind: kind, Reason: reason, Err: err}
}

// FailureReason returns the internal reason code carried by err, or "internal".
func FailureReason(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return "internal"
}

// SessionEnded reports whether err rejects a verified token only because its
// session is gone: expired, revoked or replaced by a newer login.
func SessionEnded(err error) bool {
	var ae *AuthError
	if !errors.As(err, &ae) || !errors.Is(ae.Kind, ErrSessionExpired) {
		return false
	}
	switch ae.Reason {
	case ReasonSessionAbsent, ReasonSessionExpired, ReasonSessionUsernameMismatch, ReasonSessionFingerprintMismatch:
		return true
	}
	return false
}
