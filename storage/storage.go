package storage

import (
	"context"
	"time"
)

// Client types. Only internal clients may use the password and
// client_credentials grants.
const (
	ClientTypeInternal = "internal"
	ClientTypeExternal = "external"
)

// ClientStore resolves client credentials.
// All methods accept context.Context for tracing and cancellation.
type ClientStore interface {
	// LookupClient returns the client whose identifier and secret both match.
	// Returns ErrClientNotFound when either does not match.
	LookupClient(ctx context.Context, clientID, clientSecret string) (*Client, error)
}

// UserStore resolves end-user credentials.
type UserStore interface {
	// LookupUser returns the user whose login and password both match.
	// Returns ErrUserNotFound when either does not match.
	LookupUser(ctx context.Context, login, password string) (*User, error)
}

// SessionStore creates sessions and resolves access tokens back to them.
// Session lifetime and expiry enforcement belong to the implementation.
type SessionStore interface {
	// CreateSession mints a new session bound to client and, when non-nil, user.
	// Every call yields a distinct access token.
	CreateSession(ctx context.Context, client *Client, user *User) (*Session, error)

	// GetSession resolves an access token to its live session.
	// Returns ErrSessionNotFound for unknown or expired tokens.
	GetSession(ctx context.Context, accessToken string) (*Session, error)
}

// ClientRegistry is implemented by stores that accept provisioned clients.
// Provisioning happens outside the token authority (seeding, admin tooling).
type ClientRegistry interface {
	SaveClient(ctx context.Context, client *Client) error
}

// UserRegistry is implemented by stores that accept provisioned users.
type UserRegistry interface {
	SaveUser(ctx context.Context, user *User) error
}

// Client is an identity issued to an application.
type Client struct {
	ID         string
	SecretHash string // bcrypt hash
	Type       string // "internal" or "external"
	Name       string
	CreatedAt  time.Time
}

// IsInternal reports whether the client is trusted with first-party grants.
func (c *Client) IsInternal() bool {
	return c != nil && c.Type == ClientTypeInternal
}

// User is an end-user identity.
type User struct {
	ID           string
	Login        string
	PasswordHash string // bcrypt hash, never returned to callers of the authority
	CreatedAt    time.Time
}

// Session is the server-side record backing an issued token pair.
type Session struct {
	ID           string
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // seconds, as issued
	ClientID     string
	UserID       string // empty for client_credentials sessions
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// HasUser reports whether the session was issued on behalf of a user.
func (s *Session) HasUser() bool {
	return s.UserID != ""
}
