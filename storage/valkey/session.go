package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/giantswarm/token-authority/internal/util"
	"github.com/giantswarm/token-authority/security"
	"github.com/giantswarm/token-authority/storage"
)

// tokenLogLength is the number of token characters included in debug logs
const tokenLogLength = 8

// sessionJSON is the stored form of a session. The access token itself is
// only present as the key digest.
type sessionJSON struct {
	ID           string    `json:"id"`
	RefreshToken string    `json:"refresh_token"` // sealed when an encryptor is set
	ExpiresIn    int64     `json:"expires_in"`
	ClientID     string    `json:"client_id"`
	UserID       string    `json:"user_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// CreateSession mints a session and stores it with a TTL covering its
// lifetime plus the clock-skew grace period.
func (s *Store) CreateSession(ctx context.Context, client *storage.Client, user *storage.User) (_ *storage.Session, err error) {
	ctx, span := s.obs.StartSpan(ctx, "create_session")
	defer span.End()
	defer func(start time.Time) { s.obs.Finish(ctx, span, "create_session", err, start) }(time.Now())

	session, err := storage.NewSession(s.generator, client, user, s.sessionTTL)
	if err != nil {
		return nil, err
	}

	sealed, err := s.encryptor.Encrypt(session.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	data, err := json.Marshal(sessionJSON{
		ID:           session.ID,
		RefreshToken: sealed,
		ExpiresIn:    session.ExpiresIn,
		ClientID:     session.ClientID,
		UserID:       session.UserID,
		CreatedAt:    session.CreatedAt,
		ExpiresAt:    session.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt) + security.DefaultClockSkewGracePeriod
	key := s.sessionKey(session.AccessToken)

	// NX: an existing key means an access token collision
	err = s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Nx().Ex(ttl).Build()).Error()
	if isNilError(err) {
		return nil, fmt.Errorf("access token collision")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.logger.Debug("Created session",
		"session_id", session.ID,
		"client_id", session.ClientID,
		"access_token_prefix", util.SafeTruncate(session.AccessToken, tokenLogLength),
		"ttl", ttl)

	return session, nil
}

// GetSession resolves a live session by access token.
func (s *Store) GetSession(ctx context.Context, accessToken string) (_ *storage.Session, err error) {
	ctx, span := s.obs.StartSpan(ctx, "get_session")
	defer span.End()
	defer func(start time.Time) { s.obs.Finish(ctx, span, "get_session", err, start) }(time.Now())

	if accessToken == "" || len(accessToken) > MaxCredentialLength*8 {
		return nil, storage.ErrSessionNotFound
	}

	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.sessionKey(accessToken)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var j sessionJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if security.IsSessionExpired(j.ExpiresAt) {
		return nil, storage.ErrSessionNotFound
	}

	refreshToken, err := s.encryptor.Decrypt(j.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	return &storage.Session{
		ID:           j.ID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    j.ExpiresIn,
		ClientID:     j.ClientID,
		UserID:       j.UserID,
		CreatedAt:    j.CreatedAt,
		ExpiresAt:    j.ExpiresAt,
	}, nil
}
