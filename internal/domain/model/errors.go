package model

import "errors"

// Sentinel kinds shared by the ledger and the read engines.
var (
	ErrUnknownAction       = errors.New("unknown action")
	ErrUserNotFound        = errors.New("user not found")
	ErrAchievementNotFound = errors.New("achievement not found")
	ErrPersistence         = errors.New("persistence failure")
	ErrInvalidPoints       = errors.New("points must be positive")
	ErrInvalidTimeframe    = errors.New("invalid timeframe")
	ErrInvalidLimit        = errors.New("invalid limit")
	ErrAlreadyAwarded      = errors.New("already awarded")
)
