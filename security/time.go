package security

import "time"

// DefaultClockSkewGracePeriod is how long past its expiry a session is still
// honoured, absorbing clock drift between the authority and its stores.
const DefaultClockSkewGracePeriod = 5 * time.Second

// IsSessionExpired reports whether expiresAt has passed, allowing the default grace period.
func IsSessionExpired(expiresAt time.Time) bool {
	return IsExpiredWithGracePeriod(expiresAt, DefaultClockSkewGracePeriod, time.Now())
}

// IsExpiredWithGracePeriod reports whether expiresAt+grace is before now.
// A zero expiresAt never expires.
func IsExpiredWithGracePeriod(expiresAt time.Time, grace time.Duration, now time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return now.After(expiresAt.Add(grace))
}

// RemainingSeconds returns whole seconds left until expiresAt, never negative.
func RemainingSeconds(expiresAt time.Time, now time.Time) int64 {
	d := expiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}
