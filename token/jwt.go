package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// MinJWTKeyLength is the minimum HMAC key size accepted for signing.
const MinJWTKeyLength = 32

// accessClaims is the JWT payload of an access token.
type accessClaims struct {
	ClientID string `json:"client_id"`
	UserID   string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTGenerator signs access tokens as HS256 JWTs. Refresh tokens stay opaque.
type JWTGenerator struct {
	issuer string
	key    []byte
}

// NewJWTGenerator creates a JWT generator. key must be at least 32 bytes.
func NewJWTGenerator(issuer string, key []byte) (*JWTGenerator, error) {
	if len(key) < MinJWTKeyLength {
		return nil, fmt.Errorf("jwt signing key must be at least %d bytes, got %d", MinJWTKeyLength, len(key))
	}
	return &JWTGenerator{issuer: issuer, key: key}, nil
}

// AccessToken signs a JWT for the session described by claims.
func (g *JWTGenerator) AccessToken(claims Claims) (string, error) {
	subject := claims.UserID
	if subject == "" {
		subject = claims.ClientID
	}

	c := accessClaims{
		ClientID: claims.ClientID,
		UserID:   claims.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.issuer,
			Subject:   subject,
			ID:        claims.SessionID,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(g.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// RefreshToken returns an opaque refresh token.
func (g *JWTGenerator) RefreshToken(Claims) (string, error) {
	return oauth2.GenerateVerifier(), nil
}

// Parse verifies a token produced by AccessToken and returns its claims.
// Expired tokens are rejected.
func (g *JWTGenerator) Parse(tokenString string) (*Claims, error) {
	c := &accessClaims{}
	_, err := jwt.ParseWithClaims(tokenString, c, func(*jwt.Token) (any, error) {
		return g.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(g.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}
	if c.ClientID == "" {
		return nil, errors.New("invalid access token: missing client_id")
	}

	claims := &Claims{
		SessionID: c.ID,
		ClientID:  c.ClientID,
		UserID:    c.UserID,
	}
	if c.IssuedAt != nil {
		claims.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		claims.ExpiresAt = c.ExpiresAt.Time
	}
	return claims, nil
}
