package domain

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrAccessDenied       = errors.New("access denied")

	// ErrSessionExpired is terminal for a session: the access token expired
	// and the refresh token could not mint a new one. Callers must drop the
	// session and send the visitor back to the login screen.
	ErrSessionExpired = errors.New("session expired")
)
