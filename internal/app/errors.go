package service

import "errors"

// Sentinel errors returned by the Service.
var (
	// ErrBackpressure means the award outbox is full. Callers log and move
	// on; the submission id is forgotten so it can be resubmitted.
	ErrBackpressure = errors.New("award queue is full")
	// ErrStopped means the outbox is not running.
	ErrStopped = errors.New("service is not running")
	// ErrInvalidRequest flags a malformed award submission.
	ErrInvalidRequest = errors.New("invalid award request")
)
