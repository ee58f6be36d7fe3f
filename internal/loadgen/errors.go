package loadgen

import "errors"

var (
	// ErrUnhealthy is returned when the service health check fails.
	ErrUnhealthy = errors.New("service unhealthy")
	// ErrStatus wraps an unexpected HTTP status.
	ErrStatus = errors.New("unexpected status")
	// ErrNotSettled is returned when totals did not converge within Settle.
	ErrNotSettled = errors.New("totals did not settle")
	// ErrInconsistent is returned when the board disagrees with the expected totals.
	ErrInconsistent = errors.New("leaderboard inconsistent")
)
