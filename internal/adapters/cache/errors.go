package cache

import "errors"

var (
	ErrUnavailable = errors.New("cache unavailable")
	ErrMiss        = errors.New("cache miss")
)
