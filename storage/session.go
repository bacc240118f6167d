package storage

import (
	"fmt"
	"time"

	"github.com/giantswarm/token-authority/token"
)

// DefaultSessionTTL is the access token lifetime used when a store is not
// configured otherwise.
const DefaultSessionTTL = time.Hour

// NewSession mints a session for client and optional user. Store
// implementations call it from CreateSession and then persist the result.
func NewSession(gen token.Generator, client *Client, user *User, ttl time.Duration) (*Session, error) {
	if client == nil || client.ID == "" {
		return nil, fmt.Errorf("client is required")
	}
	if gen == nil {
		return nil, fmt.Errorf("token generator is required")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	now := time.Now().UTC()
	claims := token.Claims{
		SessionID: token.NewSessionID(),
		ClientID:  client.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if user != nil {
		claims.UserID = user.ID
	}

	accessToken, err := gen.AccessToken(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err := gen.RefreshToken(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &Session{
		ID:           claims.SessionID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(ttl / time.Second),
		ClientID:     claims.ClientID,
		UserID:       claims.UserID,
		CreatedAt:    now,
		ExpiresAt:    claims.ExpiresAt,
	}, nil
}
