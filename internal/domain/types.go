package domain

// Error is a sentinel error kind shared by every layer of the service.
type Error string

func (e Error) Error() string {
	return string(e)
}

// Is lets the session failures match ErrUnauthorized so callers can test for
// the whole class with errors.Is.
func (e Error) Is(target error) bool {
	t, ok := target.(Error)
	if !ok {
		return false
	}
	if t == ErrUnauthorized {
		return e == ErrSessionNotFound || e == ErrSessionExpired
	}
	return false
}

const (
	ErrUnauthorized    Error = "unauthorized"
	ErrSessionNotFound Error = "session not found"
	ErrSessionExpired  Error = "session expired"

	ErrInvalidMessage     Error = "invalid message"
	ErrUnknownReceiver    Error = "unknown receiver"
	ErrNoActiveConnection Error = "no active connection"

	ErrUserNotFound Error = "user not found"
	ErrBadPassword  Error = "bad password"
	ErrUserExists   Error = "nickname or email already taken"
	ErrPostInvalid  Error = "title and content are required"
)
