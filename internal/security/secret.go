package security

import (
	"crypto/rand"
	"errors"
)

// MinSigningSecretBytes is the minimum HMAC-SHA256 key size accepted from configuration.
const MinSigningSecretBytes = 32

var ErrSigningKeyTooShort = errors.New("signing key too short")

// ResolveSigningSecret returns the configured secret, or a random per-process secret when
// none is configured and allowEphemeral is set. An ephemeral secret cannot be shared
// across instances; tokens it signs die with the process.
// A nil secret with a nil error means tokens cannot be issued (fail closed).
func ResolveSigningSecret(configured string, allowEphemeral bool) (secret []byte, ephemeral bool, err error) {
	if configured != "" {
		if len(configured) < MinSigningSecretBytes {
			return nil, false, ErrSigningKeyTooShort
		}
		return []byte(configured), false, nil
	}
	if !allowEphemeral {
		return nil, false, nil
	}
	buf := make([]byte, MinSigningSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, false, err
	}
	return buf, true, nil
}
