package security

import "time"

// DefaultClockSkewGracePeriod is the grace period applied to access token
// expiry checks. It absorbs NTP drift between the server and resource
// endpoints at the cost of honoring tokens up to this long past their
// nominal expiry. Grant and code expiry checks do not use it; single-use
// artifacts are checked strictly.
const DefaultClockSkewGracePeriod = 5 * time.Second

// IsTokenExpired checks token expiry with the default clock skew grace period.
func IsTokenExpired(expiresAt time.Time) bool {
	return IsTokenExpiredWithGracePeriod(expiresAt, DefaultClockSkewGracePeriod)
}

// IsTokenExpiredWithGracePeriod checks token expiry with a custom grace period.
func IsTokenExpiredWithGracePeriod(expiresAt time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false // no expiration
	}
	return time.Now().After(expiresAt.Add(gracePeriod))
}
