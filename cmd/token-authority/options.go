package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/giantswarm/token-authority/storage"
)

// Storage backends selectable with --storage.
const (
	backendMemory   = "memory"
	backendSQLite   = "sqlite"
	backendPostgres = "postgres"
	backendValkey   = "valkey"
)

// Options are the command line flags. Every flag can also be set from the
// environment.
type Options struct {
	Addr   string `short:"a" long:"addr" env:"AUTHORITY_ADDR" default:":8080" description:"listen address"`
	Issuer string `long:"issuer" env:"AUTHORITY_ISSUER" default:"http://localhost:8080" description:"public base URL; https enables HSTS"`

	Storage  string `short:"s" long:"storage" env:"AUTHORITY_STORAGE" default:"memory" choice:"memory" choice:"sqlite" choice:"postgres" choice:"valkey" description:"storage backend"`
	DSN      string `long:"dsn" env:"AUTHORITY_DSN" description:"database DSN for the sqlite and postgres backends"`
	SQLDebug bool   `long:"sql-debug" env:"AUTHORITY_SQL_DEBUG" description:"log every SQL query"`

	ValkeyAddr     string `long:"valkey-addr" env:"AUTHORITY_VALKEY_ADDR" default:"localhost:6379" description:"valkey address"`
	ValkeyPassword string `long:"valkey-password" env:"AUTHORITY_VALKEY_PASSWORD" description:"valkey password"`
	ValkeyDB       int    `long:"valkey-db" env:"AUTHORITY_VALKEY_DB" description:"valkey database number"`
	ValkeyPrefix   string `long:"valkey-prefix" env:"AUTHORITY_VALKEY_PREFIX" default:"authority:" description:"valkey key prefix"`

	SessionTTL      time.Duration `long:"session-ttl" env:"AUTHORITY_SESSION_TTL" default:"1h" description:"access token lifetime"`
	CleanupInterval time.Duration `long:"cleanup-interval" env:"AUTHORITY_CLEANUP_INTERVAL" default:"1m" description:"expired session cleanup interval"`
	JWTKey          string        `long:"jwt-key" env:"AUTHORITY_JWT_KEY" description:"base64 HMAC key; issues signed JWT access tokens instead of opaque ones"`
	EncryptionKey   string        `long:"encryption-key" env:"AUTHORITY_ENCRYPTION_KEY" description:"base64 AES-256 key for refresh tokens at rest"`

	RateLimit         int  `long:"rate-limit" env:"AUTHORITY_RATE_LIMIT" default:"10" description:"token requests per second per IP, 0 disables"`
	RateBurst         int  `long:"rate-burst" env:"AUTHORITY_RATE_BURST" default:"20" description:"token request burst per IP"`
	TrustProxy        bool `long:"trust-proxy" env:"AUTHORITY_TRUST_PROXY" description:"trust X-Forwarded-For"`
	TrustedProxyCount int  `long:"trusted-proxy-count" env:"AUTHORITY_TRUSTED_PROXY_COUNT" default:"1" description:"number of proxies in front of the authority"`

	Audit           bool   `long:"audit" env:"AUTHORITY_AUDIT" description:"enable security audit logging"`
	Instrumentation bool   `long:"instrumentation" env:"AUTHORITY_INSTRUMENTATION" description:"enable OpenTelemetry tracing and metrics"`
	LogLevel        string `long:"log-level" env:"AUTHORITY_LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"log level"`
	LogJSON         bool   `long:"log-json" env:"AUTHORITY_LOG_JSON" description:"log as JSON"`

	Clients []string `long:"client" env:"AUTHORITY_CLIENTS" env-delim:"," description:"client to provision as id:secret[:type], repeatable"`
	Users   []string `long:"user" env:"AUTHORITY_USERS" env-delim:"," description:"user to provision as login:password, repeatable"`
}

type clientSeed struct {
	id, secret, clientType string
}

type userSeed struct {
	login, password string
}

// parseClientSeed parses id:secret[:type]. The type defaults to internal.
func parseClientSeed(s string) (clientSeed, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return clientSeed{}, fmt.Errorf("invalid client %q, want id:secret[:type]", s)
	}
	seed := clientSeed{id: parts[0], secret: parts[1], clientType: storage.ClientTypeInternal}
	if len(parts) == 3 && parts[2] != "" {
		seed.clientType = parts[2]
	}
	return seed, nil
}

// parseUserSeed parses login:password. The password may itself contain colons.
func parseUserSeed(s string) (userSeed, error) {
	login, password, ok := strings.Cut(s, ":")
	if !ok || login == "" || password == "" {
		return userSeed{}, fmt.Errorf("invalid user %q, want login:password", s)
	}
	return userSeed{login: login, password: password}, nil
}
