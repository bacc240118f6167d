package security

// Event type constants for security audit logging.
const (
	// EventTokenIssued is logged when a grant succeeds and a session is created
	EventTokenIssued = "token_issued"

	// EventAuthFailure is logged when client or user credentials do not match
	EventAuthFailure = "auth_failure"

	// EventGrantForbidden is logged when authenticated credentials are not
	// permitted to use the requested grant type
	EventGrantForbidden = "grant_forbidden"

	// EventSessionLookupFailed is logged when a presented access token resolves to no session
	EventSessionLookupFailed = "session_lookup_failed"

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"
)
