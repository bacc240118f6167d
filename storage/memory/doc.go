// Package memory provides an in-memory implementation of the ClientStore,
// UserStore and SessionStore interfaces.
//
// It keeps everything in maps guarded by a sync.RWMutex and is suitable for
// development, testing, and single-instance deployments where persistence is
// not required. Features:
//   - bcrypt credential matching with constant work for unknown identifiers
//   - session expiry with a clock-skew grace period and background cleanup
//   - optional encryption of refresh tokens at rest via security.Encryptor
//   - OpenTelemetry spans, operation metrics and size gauges
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	ta, _ := authority.New(store, store, store, &authority.Config{})
package memory
