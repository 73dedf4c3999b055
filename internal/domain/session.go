package domain

import "time"

// Session is one device-bound login. At most one live session exists per UserID.
type Session struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Fingerprint string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IsLive reports whether the session has not yet expired at now.
func (s Session) IsLive(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}
