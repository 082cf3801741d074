package domain

import "time"

// PresenceRecord is derived from connection events; the hub is the source of truth.
type PresenceRecord struct {
	UserID     int64
	Nickname   string
	Online     bool
	LastSeenAt time.Time
}

type OnlineUser struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
}

type PresenceEvent struct {
	UserID   int64
	Nickname string
	Online   bool
	At       time.Time
}
