package authority

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/token-authority/instrumentation"
	"github.com/giantswarm/token-authority/security"
	"github.com/giantswarm/token-authority/storage"
)

// Handler exposes a TokenAuthority over HTTP.
type Handler struct {
	authority   *TokenAuthority
	logger      *slog.Logger
	rateLimiter *security.RateLimiter
	tracer      trace.Tracer
}

// NewHandler creates a new HTTP handler
func NewHandler(authority *TokenAuthority, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = authority.logger
	}

	h := &Handler{
		authority: authority,
		logger:    logger,
	}
	if inst := authority.Instrumentation(); inst != nil {
		h.tracer = inst.Tracer("http")
	}
	return h
}

// SetRateLimiter enables per-IP rate limiting on the token endpoint
func (h *Handler) SetRateLimiter(rl *security.RateLimiter) {
	h.rateLimiter = rl
}

// RegisterRoutes registers the token and session endpoints on mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/token", h.ServeToken)
	mux.Handle("/session", h.RequireSession(http.HandlerFunc(h.ServeSession)))
}

// ServeToken handles POST /token for the password and client_credentials grants.
// Client credentials are taken from HTTP Basic auth when present, otherwise
// from the client_id and client_secret form fields.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()

	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "authority.http.token")
		defer span.End()
	}

	if r.Method != http.MethodPost {
		h.recordHTTPMetrics(span, "token", r.Method, http.StatusMethodNotAllowed, startTime)
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP := h.clientIP(r)
	ctx = WithClientIP(ctx, clientIP)

	if h.checkIPRateLimit(w, r, clientIP) {
		h.recordHTTPMetrics(span, "token", r.Method, http.StatusTooManyRequests, startTime)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.authority.Config.MaxRequestBytes)
	if err := r.ParseForm(); err != nil {
		instrumentation.RecordError(span, err)
		h.respondError(w, span, "token", r.Method, startTime, ErrInvalidRequest("Failed to parse request"))
		return
	}

	clientID, clientSecret, err := clientCredentials(r)
	if err != nil {
		h.respondError(w, span, "token", r.Method, startTime, err)
		return
	}

	var tok *AccessToken
	switch grantType := r.PostForm.Get("grant_type"); grantType {
	case GrantTypePassword:
		login, password := r.PostForm.Get("username"), r.PostForm.Get("password")
		if login == "" || password == "" {
			h.respondError(w, span, "token", r.Method, startTime, ErrInvalidRequest("username and password are required"))
			return
		}
		tok, err = h.authority.CreateTokenByUser(ctx, clientID, clientSecret, login, password)
	case GrantTypeClientCredentials:
		tok, err = h.authority.CreateTokenByClient(ctx, clientID, clientSecret)
	case "":
		err = ErrInvalidRequest("grant_type is required")
	default:
		err = ErrUnsupportedGrantType(fmt.Sprintf("Grant type %s not supported", grantType))
	}
	if err != nil {
		h.respondError(w, span, "token", r.Method, startTime, err)
		return
	}

	tok.State = r.PostForm.Get("state")

	h.logger.Debug("Token request served",
		"request_id", security.GetRequestID(ctx),
		"client_id", clientID,
		"ip", clientIP)

	h.recordHTTPMetrics(span, "token", r.Method, http.StatusOK, startTime)
	h.writeJSON(w, http.StatusOK, tok)
}

// ServeSession handles GET /session. It must be wrapped by RequireSession.
func (h *Handler) ServeSession(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	if r.Method != http.MethodGet {
		h.recordHTTPMetrics(nil, "session", r.Method, http.StatusMethodNotAllowed, startTime)
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, ok := SessionFromContext(r.Context())
	if !ok {
		h.respondError(w, nil, "session", r.Method, startTime, ErrMissingToken("Missing Authorization header"))
		return
	}

	h.recordHTTPMetrics(nil, "session", r.Method, http.StatusOK, startTime)
	h.writeJSON(w, http.StatusOK, NewSessionView(session, time.Now()))
}

// RequireSession resolves the bearer token of each request and rejects the
// request unless it maps to a live session. The session is available to next
// through SessionFromContext.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		clientIP := h.clientIP(r)
		ctx := WithClientIP(r.Context(), clientIP)

		accessToken, err := bearerToken(r)
		if err != nil {
			h.respondError(w, nil, "session", r.Method, startTime, err)
			return
		}

		session, err := h.authority.GetSession(ctx, accessToken)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				h.logger.Error("Session lookup failed", "ip", clientIP, "error", err)
			}
			h.respondError(w, nil, "session", r.Method, startTime, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
	})
}

type sessionContextKey struct{}

// ContextWithSession returns a copy of ctx carrying session
func ContextWithSession(ctx context.Context, session *storage.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

// SessionFromContext returns the session stored by RequireSession
func SessionFromContext(ctx context.Context) (*storage.Session, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(*storage.Session)
	return session, ok && session != nil
}

// clientCredentials extracts the client pair. Basic auth values are
// form-urlencoded per RFC 6749 section 2.3.1.
func clientCredentials(r *http.Request) (clientID, clientSecret string, err error) {
	if id, secret, ok := r.BasicAuth(); ok {
		if clientID, err = url.QueryUnescape(id); err != nil {
			return "", "", ErrInvalidRequest("Malformed client credentials")
		}
		if clientSecret, err = url.QueryUnescape(secret); err != nil {
			return "", "", ErrInvalidRequest("Malformed client credentials")
		}
	} else {
		clientID = r.PostForm.Get("client_id")
		clientSecret = r.PostForm.Get("client_secret")
	}

	if clientID == "" || clientSecret == "" {
		return "", "", ErrInvalidRequest("client_id and client_secret are required")
	}
	return clientID, clientSecret, nil
}

// bearerToken extracts the token from the Authorization header
func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingToken("Missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrMissingToken("Invalid Authorization header format")
	}
	return strings.TrimSpace(parts[1]), nil
}

func (h *Handler) clientIP(r *http.Request) string {
	cfg := h.authority.Config
	return security.GetClientIP(r, cfg.TrustProxy, cfg.TrustedProxyCount)
}

// checkIPRateLimit checks if the client IP is rate limited. Returns true if limited.
func (h *Handler) checkIPRateLimit(w http.ResponseWriter, r *http.Request, clientIP string) bool {
	if h.rateLimiter == nil || h.rateLimiter.Allow(clientIP) {
		return false
	}

	h.logger.Warn("Rate limit exceeded", "ip", clientIP)
	if inst := h.authority.Instrumentation(); inst != nil {
		inst.Metrics().RecordRateLimitExceeded(r.Context(), "ip")
	}
	h.authority.Auditor().LogRateLimitExceeded(clientIP, r.URL.Path)

	w.Header().Set("Retry-After", "60")
	h.writeError(w, ErrRateLimitExceeded("Rate limit exceeded. Please try again later."))
	return true
}

// respondError records metrics and writes err. Errors that are not *Error are
// reported as server errors.
func (h *Handler) respondError(w http.ResponseWriter, span trace.Span, endpoint, method string, startTime time.Time, err error) {
	var authErr *Error
	if !errors.As(err, &authErr) {
		authErr = serverError(err)
	}
	h.recordHTTPMetrics(span, endpoint, method, authErr.Status, startTime)
	h.writeError(w, authErr)
}

func (h *Handler) writeError(w http.ResponseWriter, err *Error) {
	security.SetSecurityHeaders(w, h.authority.Config.Issuer)

	if err.Status == http.StatusUnauthorized && err.Code == ErrorCodeInvalidToken {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:            err.Code,
		ErrorDescription: err.Description,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	security.SetSecurityHeaders(w, h.authority.Config.Issuer)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) recordHTTPMetrics(span trace.Span, endpoint, method string, status int, startTime time.Time) {
	instrumentation.AddHTTPAttributes(span, method, endpoint, status)

	inst := h.authority.Instrumentation()
	if inst == nil {
		return
	}
	duration := time.Since(startTime).Seconds() * 1000
	inst.Metrics().RecordHTTPRequest(context.Background(), method, endpoint, status, duration)
}
