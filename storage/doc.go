// Package storage defines the collaborator contracts the token authority consumes
// for resolving clients, users, and sessions.
//
// The storage package defines three interfaces:
//   - ClientStore: resolves a client identifier and secret to a registered client
//   - UserStore: resolves a login and password to a user
//   - SessionStore: mints sessions and resolves access tokens back to them
//
// It also provides the shared models, sentinel errors, and credential helpers
// used by storage implementations.
//
// Implementations are provided in subpackages:
//   - storage/memory: In-memory storage for development and testing
//   - storage/mock: Mock storage for unit testing
//   - storage/sql: bun-backed storage for SQLite and PostgreSQL
//   - storage/valkey: Valkey/Redis-compatible session storage for production
package storage
