// Package mock provides mock implementations of storage interfaces for testing.
//
// Each mock has a default in-memory behaviour that can be overridden per test
// by replacing its Func fields. Calls are counted by method name.
package mock

import (
	"context"
	"sync"

	"github.com/giantswarm/token-authority/storage"
	"github.com/giantswarm/token-authority/token"
)

// callCounter is a goroutine-safe per-method call counter
type callCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *callCounter) inc(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[method]++
}

// CallCount returns how often method was called
func (c *callCounter) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[method]
}

// ResetCallCounts resets all call counters
func (c *callCounter) ResetCallCounts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = nil
}

// MockClientStore is a mock implementation of ClientStore for testing
type MockClientStore struct {
	callCounter
	mu      sync.RWMutex
	clients map[string]*storage.Client

	LookupClientFunc func(ctx context.Context, clientID, clientSecret string) (*storage.Client, error)
	SaveClientFunc   func(ctx context.Context, client *storage.Client) error
}

// NewMockClientStore creates a new mock client store matching secrets with bcrypt
func NewMockClientStore() *MockClientStore {
	m := &MockClientStore{
		clients: make(map[string]*storage.Client),
	}

	m.LookupClientFunc = func(_ context.Context, clientID, clientSecret string) (*storage.Client, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		c, ok := m.clients[clientID]
		if !ok || !storage.MatchSecret(c.SecretHash, clientSecret) {
			return nil, storage.ErrClientNotFound
		}
		return c, nil
	}

	m.SaveClientFunc = func(_ context.Context, client *storage.Client) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.clients[client.ID] = client
		return nil
	}

	return m
}

// LookupClient resolves client credentials
func (m *MockClientStore) LookupClient(ctx context.Context, clientID, clientSecret string) (*storage.Client, error) {
	m.inc("LookupClient")
	return m.LookupClientFunc(ctx, clientID, clientSecret)
}

// SaveClient registers a client
func (m *MockClientStore) SaveClient(ctx context.Context, client *storage.Client) error {
	m.inc("SaveClient")
	return m.SaveClientFunc(ctx, client)
}

// MockUserStore is a mock implementation of UserStore for testing
type MockUserStore struct {
	callCounter
	mu    sync.RWMutex
	users map[string]*storage.User

	LookupUserFunc func(ctx context.Context, login, password string) (*storage.User, error)
	SaveUserFunc   func(ctx context.Context, user *storage.User) error
}

// NewMockUserStore creates a new mock user store matching passwords with bcrypt
func NewMockUserStore() *MockUserStore {
	m := &MockUserStore{
		users: make(map[string]*storage.User),
	}

	m.LookupUserFunc = func(_ context.Context, login, password string) (*storage.User, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		u, ok := m.users[login]
		if !ok || !storage.MatchSecret(u.PasswordHash, password) {
			return nil, storage.ErrUserNotFound
		}
		return u, nil
	}

	m.SaveUserFunc = func(_ context.Context, user *storage.User) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.users[user.Login] = user
		return nil
	}

	return m
}

// LookupUser resolves user credentials
func (m *MockUserStore) LookupUser(ctx context.Context, login, password string) (*storage.User, error) {
	m.inc("LookupUser")
	return m.LookupUserFunc(ctx, login, password)
}

// SaveUser registers a user
func (m *MockUserStore) SaveUser(ctx context.Context, user *storage.User) error {
	m.inc("SaveUser")
	return m.SaveUserFunc(ctx, user)
}

// MockSessionStore is a mock implementation of SessionStore for testing
type MockSessionStore struct {
	callCounter
	mu       sync.RWMutex
	sessions map[string]*storage.Session

	CreateSessionFunc func(ctx context.Context, client *storage.Client, user *storage.User) (*storage.Session, error)
	GetSessionFunc    func(ctx context.Context, accessToken string) (*storage.Session, error)
}

// NewMockSessionStore creates a new mock session store issuing opaque tokens
// with the default session lifetime
func NewMockSessionStore() *MockSessionStore {
	m := &MockSessionStore{
		sessions: make(map[string]*storage.Session),
	}
	gen := token.NewOpaque()

	m.CreateSessionFunc = func(_ context.Context, client *storage.Client, user *storage.User) (*storage.Session, error) {
		s, err := storage.NewSession(gen, client, user, storage.DefaultSessionTTL)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		m.sessions[s.AccessToken] = s
		return s, nil
	}

	m.GetSessionFunc = func(_ context.Context, accessToken string) (*storage.Session, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		s, ok := m.sessions[accessToken]
		if !ok {
			return nil, storage.ErrSessionNotFound
		}
		return s, nil
	}

	return m
}

// CreateSession mints a session
func (m *MockSessionStore) CreateSession(ctx context.Context, client *storage.Client, user *storage.User) (*storage.Session, error) {
	m.inc("CreateSession")
	return m.CreateSessionFunc(ctx, client, user)
}

// GetSession resolves an access token
func (m *MockSessionStore) GetSession(ctx context.Context, accessToken string) (*storage.Session, error) {
	m.inc("GetSession")
	return m.GetSessionFunc(ctx, accessToken)
}

var (
	_ storage.ClientStore    = (*MockClientStore)(nil)
	_ storage.ClientRegistry = (*MockClientStore)(nil)
	_ storage.UserStore      = (*MockUserStore)(nil)
	_ storage.UserRegistry   = (*MockUserStore)(nil)
	_ storage.SessionStore   = (*MockSessionStore)(nil)
)
