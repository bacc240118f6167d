// Command token-authority serves the password and client_credentials grants
// over HTTP.
//
// Usage:
//
//	token-authority --storage sqlite --dsn file:authority.db \
//	    --client web:s3cret:internal --user alice:correct-horse
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jessevdk/go-flags"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	authority "github.com/giantswarm/token-authority"
	"github.com/giantswarm/token-authority/instrumentation"
	"github.com/giantswarm/token-authority/security"
	"github.com/giantswarm/token-authority/storage"
	"github.com/giantswarm/token-authority/storage/memory"
	sqlstore "github.com/giantswarm/token-authority/storage/sql"
	"github.com/giantswarm/token-authority/storage/valkey"
	"github.com/giantswarm/token-authority/token"
)

const shutdownTimeout = 15 * time.Second

func main() {
	var opts Options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		slog.Error("token-authority failed", "error", err)
		os.Exit(1)
	}
}

func run(opts Options) error {
	logger := newLogger(opts)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName: "token-authority",
		Enabled:     opts.Instrumentation,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize instrumentation: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := inst.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Instrumentation shutdown failed", "error", err)
		}
	}()

	gen, err := tokenGenerator(opts)
	if err != nil {
		return err
	}
	enc, err := encryptor(opts)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, opts, logger, inst)
	if err != nil {
		return err
	}
	defer closeStore()

	store.SetLogger(logger)
	store.SetTokenGenerator(gen)
	store.SetSessionTTL(opts.SessionTTL)
	store.SetEncryptor(enc)

	if err := seed(ctx, opts, store); err != nil {
		return err
	}

	ta, err := authority.New(store, store, store, &authority.Config{
		Issuer:            opts.Issuer,
		TrustProxy:        opts.TrustProxy,
		TrustedProxyCount: opts.TrustedProxyCount,
		Logger:            logger,
	})
	if err != nil {
		return err
	}
	ta.SetInstrumentation(inst)
	ta.SetAuditor(security.NewAuditor(logger, opts.Audit))

	handler := authority.NewHandler(ta, logger)
	if opts.RateLimit > 0 {
		rl := security.NewRateLimiter(opts.RateLimit, opts.RateBurst, logger)
		defer rl.Stop()
		handler.SetRateLimiter(rl)
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           security.RequestIDMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting token authority",
			"addr", opts.Addr,
			"issuer", ta.Config.Issuer,
			"storage", opts.Storage,
			"jwt_access_tokens", opts.JWTKey != "",
			"refresh_token_encryption", enc.IsEnabled(),
			"audit_logging", opts.Audit)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(opts Options) *slog.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(opts.LogLevel))

	handlerOpts := &slog.HandlerOptions{Level: level}
	if opts.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, handlerOpts))
}

func tokenGenerator(opts Options) (token.Generator, error) {
	if opts.JWTKey == "" {
		return token.NewOpaque(), nil
	}
	key, err := security.KeyFromBase64(opts.JWTKey)
	if err != nil {
		return nil, fmt.Errorf("invalid --jwt-key: %w", err)
	}
	return token.NewJWTGenerator(opts.Issuer, key)
}

func encryptor(opts Options) (*security.Encryptor, error) {
	if opts.EncryptionKey == "" {
		return nil, nil
	}
	key, err := security.KeyFromBase64(opts.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid --encryption-key: %w", err)
	}
	return security.NewEncryptor(key)
}

// backend is implemented by every storage backend.
type backend interface {
	storage.ClientStore
	storage.UserStore
	storage.SessionStore
	storage.ClientRegistry
	storage.UserRegistry

	SetLogger(*slog.Logger)
	SetTokenGenerator(token.Generator)
	SetSessionTTL(time.Duration)
	SetEncryptor(*security.Encryptor)
	SetInstrumentation(*instrumentation.Instrumentation)
}

func openStore(ctx context.Context, opts Options, logger *slog.Logger, inst *instrumentation.Instrumentation) (backend, func(), error) {
	switch opts.Storage {
	case backendMemory:
		s := memory.NewWithInterval(opts.CleanupInterval)
		s.SetInstrumentation(inst)
		return s, s.Stop, nil

	case backendSQLite, backendPostgres:
		driver, dsn := sqlstore.DriverSQLite, opts.DSN
		if opts.Storage == backendPostgres {
			driver = sqlstore.DriverPostgres
		}
		if dsn == "" {
			if driver == sqlstore.DriverPostgres {
				return nil, nil, fmt.Errorf("--dsn is required for the postgres backend")
			}
			dsn = "file:authority.db?cache=shared"
		}

		db, err := sqlstore.Open(sqlstore.Config{
			Driver:          driver,
			DSN:             dsn,
			Debug:           opts.SQLDebug,
			DebugWriter:     os.Stderr,
			Instrumentation: inst,
		})
		if err != nil {
			return nil, nil, err
		}
		s := sqlstore.New(db)
		s.SetLogger(logger)
		s.SetInstrumentation(inst)
		if err := s.CreateSchema(ctx); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		s.StartCleanup(opts.CleanupInterval)
		return s, func() { _ = s.Close() }, nil

	case backendValkey:
		s, err := valkey.New(valkey.Config{
			Address:   opts.ValkeyAddr,
			Password:  opts.ValkeyPassword,
			DB:        opts.ValkeyDB,
			KeyPrefix: opts.ValkeyPrefix,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, err
		}
		s.SetInstrumentation(inst)
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unsupported storage backend %q", opts.Storage)
}

// seed provisions the clients and users given on the command line.
func seed(ctx context.Context, opts Options, store backend) error {
	for _, raw := range opts.Clients {
		cs, err := parseClientSeed(raw)
		if err != nil {
			return err
		}
		hash, err := storage.HashSecret(cs.secret)
		if err != nil {
			return err
		}
		client := &storage.Client{
			ID:         cs.id,
			SecretHash: hash,
			Type:       cs.clientType,
			Name:       cs.id,
			CreatedAt:  time.Now(),
		}
		if err := store.SaveClient(ctx, client); err != nil {
			return fmt.Errorf("failed to provision client %s: %w", cs.id, err)
		}
	}

	for _, raw := range opts.Users {
		us, err := parseUserSeed(raw)
		if err != nil {
			return err
		}
		hash, err := storage.HashSecret(us.password)
		if err != nil {
			return err
		}
		user := &storage.User{
			ID:           uuid.NewString(),
			Login:        us.login,
			PasswordHash: hash,
			CreatedAt:    time.Now(),
		}
		if err := store.SaveUser(ctx, user); err != nil {
			return fmt.Errorf("failed to provision user %s: %w", us.login, err)
		}
	}
	return nil
}
