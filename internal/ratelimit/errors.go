package ratelimit

import "errors"

var (
	// ErrLockTimeout is returned by shared stores when the per-key lock could not
	// be acquired before the configured wait ceiling. Callers must reject the request.
	ErrLockTimeout = errors.New("rate limit lock acquisition timed out")

	// ErrInvalidConfig reports strategy options that cannot produce a working limiter.
	ErrInvalidConfig = errors.New("invalid rate limit configuration")

	// ErrDuplicatePolicy is returned when two policies are registered under the same name.
	ErrDuplicatePolicy = errors.New("rate limit policy already registered")

	// ErrUnknownPolicy is returned when configuration references a policy that was never registered.
	ErrUnknownPolicy = errors.New("unknown rate limit policy")
)
