package domain

import "time"

type User struct {
	ID           int64     `json:"user_id"`
	Nickname     string    `json:"nickname"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Age          int       `json:"age"`
	Gender       string    `json:"gender"`
	PasswordHash string    `json:"-"`
	RegisteredAt time.Time `json:"registered_at"`
}

// MinimumAge is the registration age policy. It is only checked at creation.
const MinimumAge = 13
