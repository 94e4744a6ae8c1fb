package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidInput marks malformed payloads rejected before any rate-limit
	// or store access.
	ErrInvalidInput = errors.New("auth: invalid input")
	// ErrInvalidCredentials is the uniform surface for unknown identifier,
	// wrong password, inactive account, and tenant mismatch at login. Callers
	// must not distinguish these cases externally.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrRateLimited marks attempts rejected during an active lockout.
	ErrRateLimited = errors.New("auth: rate limited")
	// ErrInvalidToken covers signature, claims, and tenant-consistency failures.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrUnauthorized marks a verified token whose subject no longer exists.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrForbidden marks an inactive account or a disallowed role.
	ErrForbidden = errors.New("auth: forbidden")
	// ErrStoreUnavailable marks a transient store failure. It is fatal to the
	// current request only; retry policy belongs to the caller.
	ErrStoreUnavailable = errors.New("auth: store unavailable")

	// ErrNotFound is returned by stores when no record matches.
	ErrNotFound = errors.New("auth: not found")
)

// Forbidden reason codes.
const (
	ReasonUserInactive   = "user_inactive"
	ReasonRoleNotAllowed = "role_not_allowed"
	ReasonTenantMismatch = "tenant_mismatch"
)

// RateLimitedError carries the remaining lockout duration for retry signaling.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("auth: rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}

// Is lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterSeconds returns the retry hint rounded up to whole seconds.
func (e *RateLimitedError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
