package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giantswarm/token-authority/instrumentation"
	"github.com/giantswarm/token-authority/internal/util"
	"github.com/giantswarm/token-authority/security"
	"github.com/giantswarm/token-authority/storage"
	"github.com/giantswarm/token-authority/token"
)

// tokenLogLength is the number of token characters included in debug logs
const tokenLogLength = 8

// Store is an in-memory implementation of all storage interfaces.
type Store struct {
	mu sync.RWMutex

	clients  map[string]*storage.Client  // client ID -> client
	users    map[string]*storage.User    // login -> user
	sessions map[string]*storage.Session // access token -> session (refresh token sealed)

	generator  token.Generator
	sessionTTL time.Duration
	encryptor  *security.Encryptor

	obs storage.Instrumented

	// read by gauge callbacks without taking mu
	clientsCount  atomic.Int64
	usersCount    atomic.Int64
	sessionsCount atomic.Int64

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

var (
	_ storage.ClientStore    = (*Store)(nil)
	_ storage.UserStore      = (*Store)(nil)
	_ storage.SessionStore   = (*Store)(nil)
	_ storage.ClientRegistry = (*Store)(nil)
	_ storage.UserRegistry   = (*Store)(nil)
)

// New creates a new in-memory store with a one minute cleanup interval
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with custom cleanup interval.
// If cleanupInterval is 0 or negative, uses default of 1 minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		clients:         make(map[string]*storage.Client),
		users:           make(map[string]*storage.User),
		sessions:        make(map[string]*storage.Session),
		generator:       token.NewOpaque(),
		sessionTTL:      storage.DefaultSessionTTL,
		obs:             storage.NewInstrumented(nil, "memory"),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

// SetTokenGenerator replaces the default opaque token generator
func (s *Store) SetTokenGenerator(gen token.Generator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != nil {
		s.generator = gen
	}
}

// SetSessionTTL sets the lifetime of newly created sessions
func (s *Store) SetSessionTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ttl > 0 {
		s.sessionTTL = ttl
	}
}

// SetEncryptor enables encryption of refresh tokens at rest
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encryptor = enc
	if enc.IsEnabled() {
		s.logger.Info("Refresh token encryption at rest enabled for storage")
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.obs = storage.NewInstrumented(inst, "memory")
	s.clientsCount.Store(int64(len(s.clients)))
	s.usersCount.Store(int64(len(s.users)))
	s.sessionsCount.Store(int64(len(s.sessions)))
	logger := s.logger
	s.mu.Unlock()

	if inst == nil {
		return
	}
	err := inst.RegisterStorageSizeCallbacks(
		s.clientsCount.Load,
		s.usersCount.Load,
		s.sessionsCount.Load,
	)
	if err != nil {
		logger.Warn("Failed to register storage size callbacks", "error", err)
	}
}

func (s *Store) observer() storage.Instrumented {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.obs
}

// Stop gracefully stops the cleanup goroutine. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient registers or replaces a client. SecretHash must already be a bcrypt hash.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	obs := s.observer()
	ctx, span := obs.StartSpan(ctx, "save_client")
	defer span.End()
	defer func(start time.Time) { obs.Finish(ctx, span, "save_client", err, start) }(time.Now())

	if client == nil || client.ID == "" {
		return fmt.Errorf("client ID cannot be empty")
	}
	if client.SecretHash == "" {
		return fmt.Errorf("client %q has no secret hash", client.ID)
	}

	stored := *client
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, existed := s.clients[client.ID]; !existed {
		s.clientsCount.Add(1)
	}
	s.clients[client.ID] = &stored

	s.logger.Debug("Saved client", "client_id", client.ID, "client_type", client.Type)
	return nil
}

// LookupClient returns the client matching both clientID and clientSecret.
func (s *Store) LookupClient(ctx context.Context, clientID, clientSecret string) (_ *storage.Client, err error) {
	obs := s.observer()
	ctx, span := obs.StartSpan(ctx, "lookup_client")
	defer span.End()
	defer func(start time.Time) { obs.Finish(ctx, span, "lookup_client", err, start) }(time.Now())

	s.mu.RLock()
	client, ok := s.clients[clientID]
	s.mu.RUnlock()

	var hash string
	if ok {
		hash = client.SecretHash
	}
	// bcrypt runs outside the lock and also for unknown IDs
	if !storage.MatchSecret(hash, clientSecret) {
		return nil, storage.ErrClientNotFound
	}

	out := *client
	return &out, nil
}

// ============================================================
// UserStore Implementation
// ============================================================

// SaveUser registers or replaces a user keyed by login.
func (s *Store) SaveUser(ctx context.Context, user *storage.User) (err error) {
	obs := s.observer()
	ctx, span := obs.StartSpan(ctx, "save_user")
	defer span.End()
	defer func(start time.Time) { obs.Finish(ctx, span, "save_user", err, start) }(time.Now())

	if user == nil || user.Login == "" {
		return fmt.Errorf("user login cannot be empty")
	}
	if user.ID == "" {
		return fmt.Errorf("user %q has no ID", user.Login)
	}
	if user.PasswordHash == "" {
		return fmt.Errorf("user %q has no password hash", user.Login)
	}

	stored := *user
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, existed := s.users[user.Login]; !existed {
		s.usersCount.Add(1)
	}
	s.users[user.Login] = &stored

	s.logger.Debug("Saved user", "user_id", user.ID)
	return nil
}

// LookupUser returns the user matching both login and password.
func (s *Store) LookupUser(ctx context.Context, login, password string) (_ *storage.User, err error) {
	obs := s.observer()
	ctx, span := obs.StartSpan(ctx, "lookup_user")
	defer span.End()
	defer func(start time.Time) { obs.Finish(ctx, span, "lookup_user", err, start) }(time.Now())

	s.mu.RLock()
	user, ok := s.users[login]
	s.mu.RUnlock()

	var hash string
	if ok {
		hash = user.PasswordHash
	}
	if !storage.MatchSecret(hash, password) {
		return nil, storage.ErrUserNotFound
	}

	out := *user
	return &out, nil
}

// ============================================================
// SessionStore Implementation
// ============================================================

// CreateSession mints and stores a new session for client and optional user.
func (s *Store) CreateSession(ctx context.Context, client *storage.Client, user *storage.User) (_ *storage.Session, err error) {
	obs := s.observer()
	ctx, span := obs.StartSpan(ctx, "create_session")
	defer span.End()
	defer func(start time.Time) { obs.Finish(ctx, span, "create_session", err, start) }(time.Now())

	s.mu.RLock()
	gen, ttl, enc := s.generator, s.sessionTTL, s.encryptor
	s.mu.RUnlock()

	session, err := storage.NewSession(gen, client, user, ttl)
	if err != nil {
		return nil, err
	}

	stored := *session
	if stored.RefreshToken, err = enc.Encrypt(session.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.AccessToken]; exists {
		return nil, fmt.Errorf("access token collision")
	}
	s.sessions[session.AccessToken] = &stored
	s.sessionsCount.Add(1)

	s.logger.Debug("Created session",
		"session_id", session.ID,
		"client_id", session.ClientID,
		"access_token_prefix", util.SafeTruncate(session.AccessToken, tokenLogLength),
		"expires_at", session.ExpiresAt)

	return session, nil
}

// GetSession resolves a live session by access token.
func (s *Store) GetSession(ctx context.Context, accessToken string) (_ *storage.Session, err error) {
	obs := s.observer()
	ctx, span := obs.StartSpan(ctx, "get_session")
	defer span.End()
	defer func(start time.Time) { obs.Finish(ctx, span, "get_session", err, start) }(time.Now())

	s.mu.RLock()
	stored, ok := s.sessions[accessToken]
	enc := s.encryptor
	s.mu.RUnlock()

	if !ok || security.IsSessionExpired(stored.ExpiresAt) {
		return nil, storage.ErrSessionNotFound
	}

	session := *stored
	if session.RefreshToken, err = enc.Decrypt(stored.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	return &session, nil
}

// SessionCount returns the number of stored sessions, expired ones included until cleanup.
func (s *Store) SessionCount() int {
	return int(s.sessionsCount.Load())
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes sessions that expired more than the grace period ago
func (s *Store) cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleaned := 0
	for accessToken, session := range s.sessions {
		if security.IsSessionExpired(session.ExpiresAt) {
			delete(s.sessions, accessToken)
			cleaned++
		}
	}
	s.sessionsCount.Add(-int64(cleaned))

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired sessions", "count", cleaned, "remaining", len(s.sessions))
	}
	return cleaned
}
