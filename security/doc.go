// Package security provides the protective layers around the token authority:
// audit logging, rate limiting, encryption at rest, client IP extraction,
// request correlation, and response hardening headers.
//
// # Audit Logging
//
// The Auditor writes structured slog records for security-relevant events
// (tokens issued, authentication failures, forbidden grants). User
// identifiers are hashed before logging; secrets and tokens are never logged.
//
// # Rate Limiting
//
// RateLimiter provides per-identifier token-bucket limiting
// (golang.org/x/time/rate) with LRU eviction so a flood of distinct
// identifiers cannot grow memory without bound.
//
//	limiter := security.NewRateLimiter(10, 20, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(clientIP) {
//		// reject with 429
//	}
//
// # Encryption at Rest
//
// Encryptor seals values with AES-256-GCM. Session stores use it for
// refresh tokens, which are persisted but never used as lookup keys.
package security
