package sqlstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/uptrace/bun"

	"github.com/giantswarm/token-authority/instrumentation"
	"github.com/giantswarm/token-authority/security"
	"github.com/giantswarm/token-authority/storage"
	"github.com/giantswarm/token-authority/token"
)

// Store implements the storage interfaces on top of bun.
type Store struct {
	db *bun.DB

	generator  token.Generator
	sessionTTL time.Duration
	encryptor  *security.Encryptor
	obs        storage.Instrumented
	logger     *slog.Logger

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

var (
	_ storage.ClientStore    = (*Store)(nil)
	_ storage.UserStore      = (*Store)(nil)
	_ storage.SessionStore   = (*Store)(nil)
	_ storage.ClientRegistry = (*Store)(nil)
	_ storage.UserRegistry   = (*Store)(nil)
)

// New wraps an open bun.DB. Call CreateSchema before first use on an empty database.
func New(db *bun.DB) *Store {
	return &Store{
		db:          db,
		generator:   token.NewOpaque(),
		sessionTTL:  storage.DefaultSessionTTL,
		obs:         storage.NewInstrumented(nil, "sql"),
		logger:      slog.Default(),
		stopCleanup: make(chan struct{}),
	}
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetTokenGenerator replaces the default opaque token generator
func (s *Store) SetTokenGenerator(gen token.Generator) {
	if gen != nil {
		s.generator = gen
	}
}

// SetSessionTTL sets the lifetime of newly created sessions
func (s *Store) SetSessionTTL(ttl time.Duration) {
	if ttl > 0 {
		s.sessionTTL = ttl
	}
}

// SetEncryptor enables encryption of refresh tokens at rest
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.encryptor = enc
}

// SetInstrumentation sets OpenTelemetry instrumentation for store operations
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.obs = storage.NewInstrumented(inst, "sql")
}

// DB returns the underlying bun.DB
func (s *Store) DB() *bun.DB {
	return s.db
}

// Close stops background cleanup and closes the database
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
	return s.db.Close()
}

// CreateSchema creates the tables and indexes if they do not exist.
func (s *Store) CreateSchema(ctx context.Context) error {
	models := []any{
		(*clientRecord)(nil),
		(*userRecord)(nil),
		(*sessionRecord)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("sqlstore: create table: %w", err)
		}
	}

	_, err := s.db.NewCreateIndex().
		Model((*sessionRecord)(nil)).
		Index("idx_authority_sessions_expires_at").
		Column("expires_at").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: create index: %w", err)
	}
	return nil
}

// SaveClient inserts or updates a client by ID.
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

	rec := newClientRecord(client)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.NewInsert().
		Model(rec).
		On("CONFLICT (id) DO UPDATE").
		Set("secret_hash = EXCLUDED.secret_hash").
		Set("type = EXCLUDED.type").
		Set("name = EXCLUDED.name").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: save client: %w", err)
	}
	return nil
}

// LookupClient returns the client matching both clientID and clientSecret.
func (s *Store) LookupClient(ctx context.Context, clientID, clientSecret string) (_ *storage.Client, err error) {
	ctx, span := s.obs.StartSpan(ctx, "lookup_client")
	defer span.End()
	defer func(start time.Time) { s.obs.Finish(ctx, span, "lookup_client", err, start) }(time.Now())

	rec := new(clientRecord)
	err = s.db.NewSelect().
		Model(rec).
		Where("?TableAlias.id = ?", clientID).
		Limit(1).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlstore: lookup client: %w", err)
	}

	var hash string
	if err == nil {
		hash = rec.SecretHash
	}
	if !storage.MatchSecret(hash, clientSecret) {
		return nil, storage.ErrClientNotFound
	}
	return rec.toDomain(), nil
}

// SaveUser inserts or updates a user by ID.
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

	rec := newUserRecord(user)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.NewInsert().
		Model(rec).
		On("CONFLICT (id) DO UPDATE").
		Set("login = EXCLUDED.login").
		Set("password_hash = EXCLUDED.password_hash").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: save user: %w", err)
	}
	return nil
}

// LookupUser returns the user matching both login and password.
func (s *Store) LookupUser(ctx context.Context, login, password string) (_ *storage.User, err error) {
	ctx, span := s.obs.StartSpan(ctx, "lookup_user")
	defer span.End()
	defer func(start time.Time) { s.obs.Finish(ctx, span, "lookup_user", err, start) }(time.Now())

	rec := new(userRecord)
	err = s.db.NewSelect().
		Model(rec).
		Where("?TableAlias.login = ?", login).
		Limit(1).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlstore: lookup user: %w", err)
	}

	var hash string
	if err == nil {
		hash = rec.PasswordHash
	}
	if !storage.MatchSecret(hash, password) {
		return nil, storage.ErrUserNotFound
	}
	return rec.toDomain(), nil
}

// CreateSession mints a session and persists it keyed by the access token digest.
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

	rec := &sessionRecord{
		ID:              session.ID,
		AccessTokenHash: hashToken(session.AccessToken),
		RefreshToken:    sealed,
		ExpiresIn:       session.ExpiresIn,
		ClientID:        session.ClientID,
		UserID:          session.UserID,
		CreatedAt:       session.CreatedAt,
		ExpiresAt:       session.ExpiresAt,
	}
	if _, err = s.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		return nil, fmt.Errorf("sqlstore: create session: %w", err)
	}

	s.logger.Debug("Created session", "session_id", session.ID, "client_id", session.ClientID)
	return session, nil
}

// GetSession resolves a live session by access token.
func (s *Store) GetSession(ctx context.Context, accessToken string) (_ *storage.Session, err error) {
	ctx, span := s.obs.StartSpan(ctx, "get_session")
	defer span.End()
	defer func(start time.Time) { s.obs.Finish(ctx, span, "get_session", err, start) }(time.Now())

	rec := new(sessionRecord)
	err = s.db.NewSelect().
		Model(rec).
		Where("?TableAlias.access_token_hash = ?", hashToken(accessToken)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get session: %w", err)
	}
	if security.IsSessionExpired(rec.ExpiresAt) {
		return nil, storage.ErrSessionNotFound
	}

	refreshToken, err := s.encryptor.Decrypt(rec.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	return rec.toDomain(accessToken, refreshToken), nil
}

// DeleteExpiredSessions removes sessions that expired more than the grace period ago.
func (s *Store) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-security.DefaultClockSkewGracePeriod)

	res, err := s.db.NewDelete().
		Model((*sessionRecord)(nil)).
		Where("expires_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// StartCleanup deletes expired sessions every interval until Close is called.
func (s *Store) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCleanup:
				return
			case <-ticker.C:
				n, err := s.DeleteExpiredSessions(context.Background())
				if err != nil {
					s.logger.Warn("Failed to clean up expired sessions", "error", err)
					continue
				}
				if n > 0 {
					s.logger.Debug("Cleaned up expired sessions", "count", n)
				}
			}
		}
	}()
}

func hashToken(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return hex.EncodeToString(sum[:])
}
