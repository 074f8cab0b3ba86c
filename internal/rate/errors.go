package rate

import "errors"

var (
	// ErrCounterUnavailable wraps failures of the Redis counter store.
	// Callers decide whether to fail open.
	ErrCounterUnavailable = errors.New("rate limit counter unavailable")
	// ErrUnknownPolicy is returned for a policy with no configured rule.
	ErrUnknownPolicy = errors.New("unknown rate limit policy")
)
