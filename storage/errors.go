package storage

import "errors"

// Sentinel errors returned by storage implementations. Callers should match
// them with errors.Is since implementations wrap them with context.
var (
	ErrClientNotFound  = errors.New("client not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
)
