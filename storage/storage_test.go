package storage

import (
	"context"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/giantswarm/token-authority/token"
)

func TestMatchSecret(t *testing.T) {
	hash, err := HashSecret("s3cret")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}

	tests := []struct {
		name   string
		hash   string
		secret string
		want   bool
	}{
		{"correct secret", hash, "s3cret", true},
		{"wrong secret", hash, "wrong", false},
		{"empty secret", hash, "", false},
		{"missing hash", "", "s3cret", false},
		{"malformed hash", "not-a-hash", "s3cret", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchSecret(tt.hash, tt.secret); got != tt.want {
				t.Errorf("MatchSecret() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHashSecret_Empty(t *testing.T) {
	if _, err := HashSecret(""); err == nil {
		t.Error("HashSecret(\"\") should return error")
	}
}

func TestNewSession(t *testing.T) {
	client := &Client{ID: "client-1", Type: ClientTypeInternal}
	user := &User{ID: "user-1", Login: "alice"}

	session, err := NewSession(token.NewOpaque(), client, user, 30*time.Minute)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	if session.ClientID != "client-1" || session.UserID != "user-1" {
		t.Errorf("session bound to (%q, %q), want (client-1, user-1)", session.ClientID, session.UserID)
	}
	if session.ExpiresIn != 1800 {
		t.Errorf("ExpiresIn = %d, want 1800", session.ExpiresIn)
	}
	if session.AccessToken == "" || session.RefreshToken == "" || session.ID == "" {
		t.Error("session is missing generated values")
	}
	if session.AccessToken == session.RefreshToken {
		t.Error("access and refresh tokens must differ")
	}
	if !session.HasUser() {
		t.Error("HasUser() = false, want true")
	}
}

func TestNewSession_WithoutUser(t *testing.T) {
	session, err := NewSession(token.NewOpaque(), &Client{ID: "client-1"}, nil, 0)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if session.HasUser() {
		t.Error("HasUser() = true, want false")
	}
	if session.ExpiresIn != int64(DefaultSessionTTL/time.Second) {
		t.Errorf("ExpiresIn = %d, want default", session.ExpiresIn)
	}
}

func TestNewSession_InvalidInput(t *testing.T) {
	if _, err := NewSession(token.NewOpaque(), nil, nil, time.Minute); err == nil {
		t.Error("NewSession() with nil client should return error")
	}
	if _, err := NewSession(nil, &Client{ID: "c"}, nil, time.Minute); err == nil {
		t.Error("NewSession() with nil generator should return error")
	}
}

func TestClient_IsInternal(t *testing.T) {
	var nilClient *Client
	if nilClient.IsInternal() {
		t.Error("nil client should not be internal")
	}
	if (&Client{Type: ClientTypeExternal}).IsInternal() {
		t.Error("external client reported as internal")
	}
	if !(&Client{Type: ClientTypeInternal}).IsInternal() {
		t.Error("internal client not reported as internal")
	}
}

func TestInstrumented_DisabledLeavesCallerSpanOpen(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, parent := tp.Tracer("caller").Start(context.Background(), "caller")

	obs := NewInstrumented(nil, "memory")
	_, span := obs.StartSpan(ctx, "lookup_client")
	obs.Finish(ctx, span, "lookup_client", ErrClientNotFound, time.Now())
	span.End()

	if n := len(recorder.Ended()); n != 0 {
		t.Fatalf("ended spans = %d, want 0; store must not end the caller span", n)
	}

	parent.End()
	if n := len(recorder.Ended()); n != 1 {
		t.Fatalf("ended spans = %d, want 1", n)
	}
}
