package testutil

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/giantswarm/token-authority/storage"
)

// Well-known fixture credentials.
const (
	InternalClientID     = "internal-client"
	InternalClientSecret = "internal-secret"
	ExternalClientID     = "external-client"
	ExternalClientSecret = "external-secret"
	UserLogin            = "alice"
	UserPassword         = "correct-horse"
)

// NewClient returns a client whose SecretHash is the bcrypt hash of secret.
func NewClient(t testing.TB, id, secret, clientType string) *storage.Client {
	t.Helper()
	hash, err := storage.HashSecret(secret)
	if err != nil {
		t.Fatalf("failed to hash client secret: %v", err)
	}
	return &storage.Client{
		ID:         id,
		SecretHash: hash,
		Type:       clientType,
		Name:       id,
		CreatedAt:  time.Now(),
	}
}

// NewUser returns a user whose PasswordHash is the bcrypt hash of password.
func NewUser(t testing.TB, login, password string) *storage.User {
	t.Helper()
	hash, err := storage.HashSecret(password)
	if err != nil {
		t.Fatalf("failed to hash user password: %v", err)
	}
	return &storage.User{
		ID:           uuid.NewString(),
		Login:        login,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
}

// Seed saves the fixture internal client, external client and user into the
// given registries.
func Seed(t testing.TB, clients storage.ClientRegistry, users storage.UserRegistry) (internal, external *storage.Client, user *storage.User) {
	t.Helper()
	ctx := t.Context()

	internal = NewClient(t, InternalClientID, InternalClientSecret, storage.ClientTypeInternal)
	external = NewClient(t, ExternalClientID, ExternalClientSecret, storage.ClientTypeExternal)
	user = NewUser(t, UserLogin, UserPassword)

	for _, c := range []*storage.Client{internal, external} {
		if err := clients.SaveClient(ctx, c); err != nil {
			t.Fatalf("SaveClient(%s) error = %v", c.ID, err)
		}
	}
	if err := users.SaveUser(ctx, user); err != nil {
		t.Fatalf("SaveUser() error = %v", err)
	}
	return internal, external, user
}

// GenerateRandomString returns a random base64url string of the given length.
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// AssertNoError fails the test if err is not nil
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertEqual fails the test if got != want
func AssertEqual[T comparable](t testing.TB, got, want T) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// HTTPRequest is a fluent builder for handler tests.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Form    url.Values
}

// NewHTTPRequest creates a new HTTP request helper
func NewHTTPRequest(method, url string) *HTTPRequest {
	return &HTTPRequest{
		Method:  method,
		URL:     url,
		Headers: make(map[string]string),
	}
}

// WithHeader adds a header to the request
func (r *HTTPRequest) WithHeader(key, value string) *HTTPRequest {
	r.Headers[key] = value
	return r
}

// WithBearer sets an Authorization: Bearer header
func (r *HTTPRequest) WithBearer(token string) *HTTPRequest {
	return r.WithHeader("Authorization", "Bearer "+token)
}

// WithForm sets a form-encoded request body
func (r *HTTPRequest) WithForm(form url.Values) *HTTPRequest {
	r.Form = form
	return r
}

// Do executes the request against handler
func (r *HTTPRequest) Do(handler http.Handler) *httptest.ResponseRecorder {
	var req *http.Request
	if r.Form != nil {
		req = httptest.NewRequest(r.Method, r.URL, strings.NewReader(r.Form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(r.Method, r.URL, nil)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}
