package authority

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/token-authority/instrumentation"
	"github.com/giantswarm/token-authority/internal/util"
	"github.com/giantswarm/token-authority/security"
	"github.com/giantswarm/token-authority/storage"
)

// tokenLogLength is the number of token characters included in logs
const tokenLogLength = 8

// TokenAuthority issues access tokens for the password and client_credentials
// grants and resolves access tokens back to sessions. It holds no mutable
// request state and is safe for concurrent use.
type TokenAuthority struct {
	clients  storage.ClientStore
	users    storage.UserStore
	sessions storage.SessionStore

	Config *Config

	logger          *slog.Logger
	auditor         *security.Auditor
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

// New creates a token authority over the given stores. All three are required.
func New(clients storage.ClientStore, users storage.UserStore, sessions storage.SessionStore, config *Config) (*TokenAuthority, error) {
	if clients == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}

	config = applyDefaults(config)

	return &TokenAuthority{
		clients:  clients,
		users:    users,
		sessions: sessions,
		Config:   config,
		logger:   config.Logger,
	}, nil
}

// SetAuditor enables security audit logging
func (a *TokenAuthority) SetAuditor(auditor *security.Auditor) {
	a.auditor = auditor
	if auditor != nil && a.instrumentation != nil {
		a.hookAuditMetrics()
	}
}

// SetInstrumentation enables OpenTelemetry spans and metrics
func (a *TokenAuthority) SetInstrumentation(inst *instrumentation.Instrumentation) {
	a.instrumentation = inst
	a.tracer = nil
	if inst != nil {
		a.tracer = inst.Tracer("authority")
		if a.auditor != nil {
			a.hookAuditMetrics()
		}
	}
}

func (a *TokenAuthority) hookAuditMetrics() {
	metrics := a.instrumentation.Metrics()
	a.auditor.OnEvent(func(eventType string) {
		metrics.RecordAuditEvent(context.Background(), eventType)
	})
}

// Instrumentation returns the configured instrumentation, or nil
func (a *TokenAuthority) Instrumentation() *instrumentation.Instrumentation {
	return a.instrumentation
}

// Auditor returns the configured auditor, or nil
func (a *TokenAuthority) Auditor() *security.Auditor {
	return a.auditor
}

// GetSession resolves an access token to its live session.
// Unknown and expired tokens both yield ErrNotFound.
func (a *TokenAuthority) GetSession(ctx context.Context, accessToken string) (*storage.Session, error) {
	ctx, span := a.startSpan(ctx, "get_session")
	defer span.End()

	session, err := a.getSession(ctx, accessToken)

	result := instrumentation.ResultFound
	switch {
	case errors.Is(err, ErrNotFound):
		result = instrumentation.ResultNotFound
		a.auditor.LogSessionLookupFailed(clientIPFromContext(ctx))
	case err != nil:
		result = instrumentation.ResultError
		instrumentation.RecordError(span, err)
	default:
		instrumentation.AddSessionAttributes(span, session.ID, session.ClientID, session.UserID)
		instrumentation.SetSpanSuccess(span)
	}
	if a.instrumentation != nil {
		a.instrumentation.Metrics().RecordSessionLookup(ctx, result)
	}

	return session, err
}

func (a *TokenAuthority) getSession(ctx context.Context, accessToken string) (*storage.Session, error) {
	if accessToken == "" {
		return nil, ErrNotFound
	}

	session, err := a.sessions.GetSession(ctx, accessToken)
	switch {
	case errors.Is(err, storage.ErrSessionNotFound):
		a.logger.Debug("Session not found",
			"access_token_prefix", util.SafeTruncate(accessToken, tokenLogLength))
		return nil, ErrNotFound
	case err != nil:
		a.logger.Error("Session lookup failed", "error", err)
		return nil, serverError(err)
	case session == nil:
		return nil, ErrNotFound
	}
	return session, nil
}

// CreateTokenByUser implements the password grant. The client and user
// lookups run concurrently and both complete before any policy decision.
func (a *TokenAuthority) CreateTokenByUser(ctx context.Context, clientID, clientSecret, login, password string) (*AccessToken, error) {
	ctx, span := a.startSpan(ctx, "create_token_by_user")
	defer span.End()
	instrumentation.AddGrantAttributes(span, GrantTypePassword, clientID)
	start := time.Now()

	var (
		wg                 sync.WaitGroup
		client             *storage.Client
		user               *storage.User
		clientErr, userErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		client, clientErr = a.clients.LookupClient(ctx, clientID, clientSecret)
	}()
	go func() {
		defer wg.Done()
		user, userErr = a.users.LookupUser(ctx, login, password)
	}()
	wg.Wait()

	ip := clientIPFromContext(ctx)

	if err := classifyLookups(lookup{client, clientErr}, lookup{user, userErr}); err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			a.logger.Warn("Password grant authentication failed", "client_id", clientID, "ip", ip)
			a.auditor.LogAuthFailure(login, clientID, ip, GrantTypePassword)
		} else {
			a.logger.Error("Password grant credential lookup failed", "client_id", clientID, "error", err)
		}
		return nil, a.finishGrant(ctx, span, GrantTypePassword, start, err)
	}

	if !client.IsInternal() {
		a.logger.Warn("Password grant refused for non-internal client",
			"client_id", client.ID, "client_type", client.Type, "ip", ip)
		a.auditor.LogGrantForbidden(user.ID, client.ID, client.Type, ip, GrantTypePassword)
		return nil, a.finishGrant(ctx, span, GrantTypePassword, start, ErrForbidden)
	}

	return a.issue(ctx, span, GrantTypePassword, start, client, user)
}

// CreateTokenByClient implements the client_credentials grant. The resulting
// session has no bound user.
func (a *TokenAuthority) CreateTokenByClient(ctx context.Context, clientID, clientSecret string) (*AccessToken, error) {
	ctx, span := a.startSpan(ctx, "create_token_by_client")
	defer span.End()
	instrumentation.AddGrantAttributes(span, GrantTypeClientCredentials, clientID)
	start := time.Now()

	client, clientErr := a.clients.LookupClient(ctx, clientID, clientSecret)
	ip := clientIPFromContext(ctx)

	if err := classifyLookups(lookup{client, clientErr}); err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			a.logger.Warn("Client credentials grant authentication failed", "client_id", clientID, "ip", ip)
			a.auditor.LogAuthFailure("", clientID, ip, GrantTypeClientCredentials)
		} else {
			a.logger.Error("Client credentials lookup failed", "client_id", clientID, "error", err)
		}
		return nil, a.finishGrant(ctx, span, GrantTypeClientCredentials, start, err)
	}

	if !client.IsInternal() {
		a.logger.Warn("Client credentials grant refused for non-internal client",
			"client_id", client.ID, "client_type", client.Type, "ip", ip)
		a.auditor.LogGrantForbidden("", client.ID, client.Type, ip, GrantTypeClientCredentials)
		return nil, a.finishGrant(ctx, span, GrantTypeClientCredentials, start, ErrForbidden)
	}

	return a.issue(ctx, span, GrantTypeClientCredentials, start, client, nil)
}

// issue creates the session for an authenticated and authorized grant.
func (a *TokenAuthority) issue(ctx context.Context, span trace.Span, grantType string, start time.Time, client *storage.Client, user *storage.User) (*AccessToken, error) {
	session, err := a.sessions.CreateSession(ctx, client, user)
	if err != nil {
		a.logger.Error("Failed to create session", "client_id", client.ID, "grant_type", grantType, "error", err)
		return nil, a.finishGrant(ctx, span, grantType, start, serverError(err))
	}
	if session == nil {
		return nil, a.finishGrant(ctx, span, grantType, start, serverError(errors.New("session store returned no session")))
	}

	instrumentation.AddSessionAttributes(span, session.ID, session.ClientID, session.UserID)
	a.auditor.LogTokenIssued(session.UserID, session.ClientID, clientIPFromContext(ctx), grantType)
	a.logger.Info("Issued access token",
		"grant_type", grantType,
		"client_id", session.ClientID,
		"session_id", session.ID,
		"access_token_prefix", util.SafeTruncate(session.AccessToken, tokenLogLength),
		"expires_in", session.ExpiresIn)

	_ = a.finishGrant(ctx, span, grantType, start, nil)
	return newAccessToken(session), nil
}

// finishGrant records the grant outcome on span and metrics and returns err.
func (a *TokenAuthority) finishGrant(ctx context.Context, span trace.Span, grantType string, start time.Time, err error) error {
	var result string
	switch {
	case err == nil:
		result = instrumentation.ResultIssued
		instrumentation.SetSpanSuccess(span)
	case errors.Is(err, ErrUnauthenticated):
		result = instrumentation.ResultUnauthenticated
	case errors.Is(err, ErrForbidden):
		result = instrumentation.ResultForbidden
	default:
		result = instrumentation.ResultError
		instrumentation.RecordError(span, err)
	}
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrResult, result))

	if a.instrumentation != nil {
		a.instrumentation.Metrics().RecordGrant(ctx, grantType, result, float64(time.Since(start).Milliseconds()))
	}
	return err
}

func (a *TokenAuthority) startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if a.tracer == nil {
		return ctx, noop.Span{}
	}
	return a.tracer.Start(ctx, "authority."+operation)
}

// lookup is the outcome of one credential lookup
type lookup struct {
	record any
	err    error
}

// classifyLookups maps credential lookup outcomes to a failure class, or nil
// when every lookup matched. Any infrastructure error wins over a not-found
// so that transient faults are not reported as bad credentials.
func classifyLookups(lookups ...lookup) error {
	unauthenticated := false
	for _, l := range lookups {
		switch {
		case l.err == nil && !isNilRecord(l.record):
		case l.err == nil || storage.IsNotFound(l.err):
			unauthenticated = true
		default:
			return serverError(l.err)
		}
	}
	if unauthenticated {
		return ErrUnauthenticated
	}
	return nil
}

func isNilRecord(record any) bool {
	switch r := record.(type) {
	case *storage.Client:
		return r == nil
	case *storage.User:
		return r == nil
	default:
		return record == nil
	}
}

type clientIPContextKey struct{}

// WithClientIP attaches the caller's IP address for audit logging.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}
