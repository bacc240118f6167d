package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/giantswarm/token-authority/storage"
)

type clientRecord struct {
	bun.BaseModel `bun:"table:authority_clients,alias:ac"`

	ID         string    `bun:"id,pk"`
	SecretHash string    `bun:"secret_hash,notnull"`
	Type       string    `bun:"type,notnull"`
	Name       string    `bun:"name"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type userRecord struct {
	bun.BaseModel `bun:"table:authority_users,alias:au"`

	ID           string    `bun:"id,pk"`
	Login        string    `bun:"login,notnull,unique"`
	PasswordHash string    `bun:"password_hash,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type sessionRecord struct {
	bun.BaseModel `bun:"table:authority_sessions,alias:ss"`

	ID              string    `bun:"id,pk"`
	AccessTokenHash string    `bun:"access_token_hash,notnull,unique"`
	RefreshToken    string    `bun:"refresh_token,notnull"` // sealed when an encryptor is set
	ExpiresIn       int64     `bun:"expires_in,notnull"`
	ClientID        string    `bun:"client_id,notnull"`
	UserID          string    `bun:"user_id"`
	CreatedAt       time.Time `bun:"created_at,notnull"`
	ExpiresAt       time.Time `bun:"expires_at,notnull"`
}

func newClientRecord(c *storage.Client) *clientRecord {
	return &clientRecord{
		ID:         c.ID,
		SecretHash: c.SecretHash,
		Type:       c.Type,
		Name:       c.Name,
		CreatedAt:  c.CreatedAt.UTC(),
	}
}

func (r *clientRecord) toDomain() *storage.Client {
	return &storage.Client{
		ID:         r.ID,
		SecretHash: r.SecretHash,
		Type:       r.Type,
		Name:       r.Name,
		CreatedAt:  r.CreatedAt,
	}
}

func newUserRecord(u *storage.User) *userRecord {
	return &userRecord{
		ID:           u.ID,
		Login:        u.Login,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt.UTC(),
	}
}

func (r *userRecord) toDomain() *storage.User {
	return &storage.User{
		ID:           r.ID,
		Login:        r.Login,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
	}
}

func (r *sessionRecord) toDomain(accessToken, refreshToken string) *storage.Session {
	return &storage.Session{
		ID:           r.ID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    r.ExpiresIn,
		ClientID:     r.ClientID,
		UserID:       r.UserID,
		CreatedAt:    r.CreatedAt,
		ExpiresAt:    r.ExpiresAt,
	}
}
