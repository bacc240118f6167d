package storage

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// dummySecretHash is compared against when no stored hash exists so that
// unknown identifiers cost the same bcrypt work as known ones.
const dummySecretHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// HashSecret returns the bcrypt hash of a client secret or user password.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}

// MatchSecret reports whether secret matches hash. An empty hash never
// matches, but a bcrypt comparison is still performed.
func MatchSecret(hash, secret string) bool {
	candidate := hash
	if candidate == "" {
		candidate = dummySecretHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(candidate), []byte(secret))
	return hash != "" && err == nil
}
