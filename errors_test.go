package authority

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_Is(t *testing.T) {
	cause := errors.New("pq: connection refused")

	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{name: "same sentinel", err: ErrUnauthenticated, target: ErrUnauthenticated, want: true},
		{name: "wrapped sentinel", err: fmt.Errorf("grant: %w", ErrForbidden), target: ErrForbidden, want: true},
		{name: "different class", err: ErrForbidden, target: ErrUnauthenticated, want: false},
		{name: "server error matches class", err: serverError(cause), target: ErrServer, want: true},
		{name: "server error unwraps to cause", err: serverError(cause), target: cause, want: true},
		{name: "missing token is not not-found", err: ErrMissingToken("x"), target: ErrNotFound, want: false},
		{name: "same code and status with other description", err: NewError(ErrorCodeInvalidClient, "other", http.StatusUnauthorized), target: ErrUnauthenticated, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Statuses(t *testing.T) {
	tests := []struct {
		err        *Error
		wantStatus int
	}{
		{ErrUnauthenticated, http.StatusUnauthorized},
		{ErrForbidden, http.StatusForbidden},
		{ErrNotFound, http.StatusNotFound},
		{ErrServer, http.StatusInternalServerError},
		{ErrInvalidRequest("x"), http.StatusBadRequest},
		{ErrUnsupportedGrantType("x"), http.StatusBadRequest},
		{ErrRateLimitExceeded("x"), http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			if tt.err.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", tt.err.Status, tt.wantStatus)
			}
		})
	}
}

func TestServerError_DoesNotRenderCause(t *testing.T) {
	err := serverError(errors.New("secret dsn"))
	if got, want := err.Error(), "server_error: Internal server error"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
