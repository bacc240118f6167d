package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/giantswarm/token-authority/storage"
)

// clientJSON is the stored form of a client
type clientJSON struct {
	ID         string    `json:"id"`
	SecretHash string    `json:"secret_hash"`
	Type       string    `json:"type"`
	Name       string    `json:"name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// userJSON is the stored form of a user
type userJSON struct {
	ID           string    `json:"id"`
	Login        string    `json:"login"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// SaveClient stores a client. Clients do not expire.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	ctx, span := s.obs.StartSpan(ctx, "save_client")
	defer span.End()
	defer func(start time.Time) { s.obs.Finish(ctx, span, "save_client", err, start) }(time.Now())

	if client == nil || client.ID == "" {
		return fmt.Errorf("client ID cannot be empty")
	}
	if client.SecretHash == "" {
		return fmt.Errorf("client %q has no secret hash", client.ID)
	}

	j := clientJSON{
		ID:         client.ID,
		SecretHash: client.SecretHash,
		Type:       client.Type,
		Name:       client.Name,
		CreatedAt:  client.CreatedAt,
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}

	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}

	key := s.clientKey(client.ID)
	if err := s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	s.logger.Debug("Saved client", "client_id", client.ID, "client_type", client.Type)
	return nil
}

// LookupClient returns the client matching both clientID and clientSecret.
func (s *Store) LookupClient(ctx context.Context, clientID, clientSecret string) (_ *storage.Client, err error) {
	ctx, span := s.obs.StartSpan(ctx, "lookup_client")
	defer span.End()
	defer func(start time.Time) { s.obs.Finish(ctx, span, "lookup_client", err, start) }(time.Now())

	var j clientJSON
	found, err := s.getJSON(ctx, s.clientKey(clientID), len(clientID), &j)
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	var hash string
	if found {
		hash = j.SecretHash
	}
	// same bcrypt work whether or not the client exists
	if !storage.MatchSecret(hash, clientSecret) {
		return nil, storage.ErrClientNotFound
	}

	return &storage.Client{
		ID:         j.ID,
		SecretHash: j.SecretHash,
		Type:       j.Type,
		Name:       j.Name,
		CreatedAt:  j.CreatedAt,
	}, nil
}

// SaveUser stores a user keyed by login.
func (s *Store) SaveUser(ctx context.Context, user *storage.User) (err error) {
	ctx, span := s.obs.StartSpan(ctx, "save_user")
	defer span.End()
	defer func(start time.Time) { s.obs.Finish(ctx, span, "save_user", err, start) }(time.Now())

	if user == nil || user.Login == "" || user.ID == "" {
		return fmt.Errorf("user ID and login are required")
	}
	if user.PasswordHash == "" {
		return fmt.Errorf("user %q has no password hash", user.Login)
	}

	j := userJSON{
		ID:           user.ID,
		Login:        user.Login,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}

	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	key := s.userKey(user.Login)
	if err := s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	s.logger.Debug("Saved user", "user_id", user.ID)
	return nil
}

// LookupUser returns the user matching both login and password.
func (s *Store) LookupUser(ctx context.Context, login, password string) (_ *storage.User, err error) {
	ctx, span := s.obs.StartSpan(ctx, "lookup_user")
	defer span.End()
	defer func(start time.Time) { s.obs.Finish(ctx, span, "lookup_user", err, start) }(time.Now())

	var j userJSON
	found, err := s.getJSON(ctx, s.userKey(login), len(login), &j)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var hash string
	if found {
		hash = j.PasswordHash
	}
	if !storage.MatchSecret(hash, password) {
		return nil, storage.ErrUserNotFound
	}

	return &storage.User{
		ID:           j.ID,
		Login:        j.Login,
		PasswordHash: j.PasswordHash,
		CreatedAt:    j.CreatedAt,
	}, nil
}

// getJSON loads key into v. found is false for a missing key or an
// oversized identifier, neither of which is an error.
func (s *Store) getJSON(ctx context.Context, key string, idLen int, v any) (found bool, err error) {
	if idLen == 0 || idLen > MaxCredentialLength {
		return false, nil
	}

	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return false, nil
		}
		return false, err
	}

	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}
