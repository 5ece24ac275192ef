package rate

import "errors"

var (
	// ErrRateLimited is returned when a caller has exhausted its failure budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
