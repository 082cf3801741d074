package domain

import "time"

// Session binds an issued token to exactly one user until it expires or is revoked.
type Session struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"session_id"`
	UserID       int64     `json:"user_id"`
	Nickname     string    `json:"nickname"`
	DeviceInfo   string    `json:"device_info"`
	IPAddress    string    `json:"ip_address"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastActivity time.Time `json:"last_activity"`
	IsActive     bool      `json:"is_active"`
}

// ExpiredAt reports whether the session is past its expiry at t.
func (s Session) ExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// SessionMeta describes the client that asked for a session.
type SessionMeta struct {
	DeviceInfo string
	IPAddress  string
}
