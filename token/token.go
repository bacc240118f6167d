package token

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Claims describes the session a token is minted for.
type Claims struct {
	SessionID string
	ClientID  string
	UserID    string // empty when no user is bound
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Generator mints access and refresh token strings.
type Generator interface {
	AccessToken(claims Claims) (string, error)
	RefreshToken(claims Claims) (string, error)
}

// NewSessionID returns a new random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Opaque generates random tokens using oauth2.GenerateVerifier, which yields
// 32 bytes of crypto/rand entropy encoded as unpadded base64url.
type Opaque struct{}

// NewOpaque returns an opaque token generator.
func NewOpaque() Opaque {
	return Opaque{}
}

// AccessToken returns a new random access token.
func (Opaque) AccessToken(Claims) (string, error) {
	return oauth2.GenerateVerifier(), nil
}

// RefreshToken returns a new random refresh token.
func (Opaque) RefreshToken(Claims) (string, error) {
	return oauth2.GenerateVerifier(), nil
}
