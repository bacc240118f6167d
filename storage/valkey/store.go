package valkey

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/giantswarm/token-authority/instrumentation"
	"github.com/giantswarm/token-authority/security"
	"github.com/giantswarm/token-authority/storage"
	"github.com/giantswarm/token-authority/token"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "authority:"

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second

	// MaxCredentialLength bounds identifiers and secrets accepted for lookup
	MaxCredentialLength = 512
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "authority:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of the storage interfaces.
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger

	generator  token.Generator
	sessionTTL time.Duration
	encryptor  *security.Encryptor
	obs        storage.Instrumented
}

var (
	_ storage.ClientStore    = (*Store)(nil)
	_ storage.UserStore      = (*Store)(nil)
	_ storage.SessionStore   = (*Store)(nil)
	_ storage.ClientRegistry = (*Store)(nil)
	_ storage.UserRegistry   = (*Store)(nil)
)

// New creates a new Valkey-backed store.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := valkeygo.NewClient(valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
		Password:    cfg.Password,
		TLSConfig:   cfg.TLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client:     client,
		prefix:     prefix,
		logger:     logger,
		generator:  token.NewOpaque(),
		sessionTTL: storage.DefaultSessionTTL,
		obs:        storage.NewInstrumented(nil, "valkey"),
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetLogger sets a custom logger for the store.
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

// SetEncryptor enables encryption of refresh tokens at rest.
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.encryptor = enc
	if enc.IsEnabled() {
		s.logger.Info("Refresh token encryption at rest enabled for Valkey storage")
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for store operations
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.obs = storage.NewInstrumented(inst, "valkey")
}

// ============================================================
// Key Helpers
// ============================================================

func (s *Store) clientKey(clientID string) string {
	return s.prefix + "client:" + clientID
}

func (s *Store) userKey(login string) string {
	return s.prefix + "user:" + login
}

func (s *Store) sessionKey(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return s.prefix + "session:" + hex.EncodeToString(sum[:])
}

func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}
