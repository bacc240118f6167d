package token

import (
	"strings"
	"testing"
	"time"
)

func TestOpaque_UniqueTokens(t *testing.T) {
	gen := NewOpaque()
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		access, err := gen.AccessToken(Claims{})
		if err != nil {
			t.Fatalf("AccessToken() error = %v", err)
		}
		refresh, err := gen.RefreshToken(Claims{})
		if err != nil {
			t.Fatalf("RefreshToken() error = %v", err)
		}
		if seen[access] || seen[refresh] {
			t.Fatalf("duplicate token generated at iteration %d", i)
		}
		seen[access] = true
		seen[refresh] = true
	}
}

func TestOpaque_URLSafe(t *testing.T) {
	tok, _ := NewOpaque().AccessToken(Claims{})
	if len(tok) < 43 {
		t.Errorf("token length = %d, want >= 43", len(tok))
	}
	if strings.ContainsAny(tok, "+/=") {
		t.Errorf("token %q is not URL-safe", tok)
	}
}

func TestNewSessionID(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	if a == b {
		t.Error("NewSessionID() returned duplicate IDs")
	}
	if len(a) != 36 {
		t.Errorf("NewSessionID() length = %d, want 36", len(a))
	}
}

func TestJWTGenerator_ShortKey(t *testing.T) {
	_, err := NewJWTGenerator("https://auth.example.com", []byte("short"))
	if err == nil {
		t.Error("NewJWTGenerator() with short key should return error")
	}
}

func TestJWTGenerator_RoundTrip(t *testing.T) {
	key := []byte(strings.Repeat("k", MinJWTKeyLength))
	gen, err := NewJWTGenerator("https://auth.example.com", key)
	if err != nil {
		t.Fatalf("NewJWTGenerator() error = %v", err)
	}

	now := time.Now().Truncate(time.Second)
	tests := []struct {
		name   string
		claims Claims
	}{
		{
			name: "client only",
			claims: Claims{
				SessionID: NewSessionID(),
				ClientID:  "client-1",
				IssuedAt:  now,
				ExpiresAt: now.Add(time.Hour),
			},
		},
		{
			name: "client and user",
			claims: Claims{
				SessionID: NewSessionID(),
				ClientID:  "client-1",
				UserID:    "user-1",
				IssuedAt:  now,
				ExpiresAt: now.Add(time.Hour),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signed, err := gen.AccessToken(tt.claims)
			if err != nil {
				t.Fatalf("AccessToken() error = %v", err)
			}

			got, err := gen.Parse(signed)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got.SessionID != tt.claims.SessionID {
				t.Errorf("SessionID = %q, want %q", got.SessionID, tt.claims.SessionID)
			}
			if got.ClientID != tt.claims.ClientID {
				t.Errorf("ClientID = %q, want %q", got.ClientID, tt.claims.ClientID)
			}
			if got.UserID != tt.claims.UserID {
				t.Errorf("UserID = %q, want %q", got.UserID, tt.claims.UserID)
			}
			if !got.ExpiresAt.Equal(tt.claims.ExpiresAt) {
				t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, tt.claims.ExpiresAt)
			}
		})
	}
}

func TestJWTGenerator_RejectsForeignKey(t *testing.T) {
	a, _ := NewJWTGenerator("iss", []byte(strings.Repeat("a", MinJWTKeyLength)))
	b, _ := NewJWTGenerator("iss", []byte(strings.Repeat("b", MinJWTKeyLength)))

	now := time.Now()
	signed, err := a.AccessToken(Claims{ClientID: "c", IssuedAt: now, ExpiresAt: now.Add(time.Minute)})
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}

	if _, err := b.Parse(signed); err == nil {
		t.Error("Parse() should reject a token signed with another key")
	}
}

func TestJWTGenerator_RejectsExpired(t *testing.T) {
	gen, _ := NewJWTGenerator("iss", []byte(strings.Repeat("a", MinJWTKeyLength)))

	past := time.Now().Add(-2 * time.Hour)
	signed, err := gen.AccessToken(Claims{ClientID: "c", IssuedAt: past, ExpiresAt: past.Add(time.Hour)})
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}

	if _, err := gen.Parse(signed); err == nil {
		t.Error("Parse() should reject an expired token")
	}
}
