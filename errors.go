package authority

import (
	"fmt"
	"net/http"
)

// OAuth error codes as constants
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidToken         = "invalid_token"
	ErrorCodeUnauthorizedClient   = "unauthorized_client"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeServerError          = "server_error"
	ErrorCodeRateLimitExceeded    = "rate_limit_exceeded"
)

// Error is a classified failure of a token authority operation.
// Code and Description are safe to show to callers; Status is the HTTP status
// the failure maps to.
type Error struct {
	Code        string
	Description string
	Status      int

	cause error // never rendered
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Unwrap exposes the underlying infrastructure error of server errors.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error of the same class, so errors.Is(err, ErrForbidden)
// holds regardless of the description.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Status == t.Status
}

// NewError creates a new classified error
func NewError(code, description string, status int) *Error {
	return &Error{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Failure classes returned by TokenAuthority. Match with errors.Is.
var (
	// ErrUnauthenticated: the client or user credentials did not match. Which
	// half failed is deliberately not reported.
	ErrUnauthenticated = NewError(ErrorCodeInvalidClient, "Client or user credentials could not be verified", http.StatusUnauthorized)

	// ErrForbidden: credentials matched but the client type may not use the grant.
	ErrForbidden = NewError(ErrorCodeUnauthorizedClient, "Client is not permitted to use this grant type", http.StatusForbidden)

	// ErrNotFound: no live session matches the access token.
	ErrNotFound = NewError(ErrorCodeInvalidToken, "Access token is unknown or expired", http.StatusNotFound)

	// ErrServer: a store failed. Distinct from credential rejection.
	ErrServer = NewError(ErrorCodeServerError, "Internal server error", http.StatusInternalServerError)
)

// serverError wraps an infrastructure failure without leaking it into the description.
func serverError(cause error) *Error {
	return &Error{
		Code:        ErrServer.Code,
		Description: ErrServer.Description,
		Status:      ErrServer.Status,
		cause:       cause,
	}
}

// ErrInvalidRequest indicates the request is malformed or missing required parameters
func ErrInvalidRequest(desc string) *Error {
	return NewError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
}

// ErrUnsupportedGrantType indicates the grant type is not supported
func ErrUnsupportedGrantType(desc string) *Error {
	return NewError(ErrorCodeUnsupportedGrantType, desc, http.StatusBadRequest)
}

// ErrMissingToken indicates a request to a protected endpoint carried no bearer token
func ErrMissingToken(desc string) *Error {
	return NewError(ErrorCodeInvalidToken, desc, http.StatusUnauthorized)
}

// ErrRateLimitExceeded indicates the caller exceeded its request rate
func ErrRateLimitExceeded(desc string) *Error {
	return NewError(ErrorCodeRateLimitExceeded, desc, http.StatusTooManyRequests)
}
