package security

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// FingerprintLength is the length of every derived fingerprint (hex-encoded SHA-256).
const FingerprintLength = sha256.Size * 2

// DeviceSignals are the request attributes a fingerprint is derived from.
type DeviceSignals struct {
	UserAgent      string
	AcceptLanguage string
	ClientIP       string
}

// DeriveFingerprint returns a deterministic digest of the device signals.
// Missing signals contribute empty components; the result is always FingerprintLength long.
func DeriveFingerprint(s DeviceSignals) string {
	h := sha256.New()
	for _, part := range []string{s.UserAgent, s.AcceptLanguage, s.ClientIP} {
		h.Write([]byte(strings.TrimSpace(part)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func SignalsFromRequest(r *http.Request) DeviceSignals {
	return DeviceSignals{
		UserAgent:      r.Header.Get("User-Agent"),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		ClientIP:       ClientIP(r),
	}
}

func FingerprintFromRequest(r *http.Request) string {
	return DeriveFingerprint(SignalsFromRequest(r))
}

// ClientIP is best effort: it relies on RemoteAddr, which chi's RealIP middleware
// rewrites from X-Real-IP / X-Forwarded-For upstream of this call.
func ClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if ip := net.ParseIP(addr); ip != nil {
		return ip.String()
	}
	return addr
}
