package repository

import (
	"errors"
	"fmt"

	"github.com/okian/pointsboard/internal/domain/model"
)

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidLimit  = errors.New("invalid limit")
	ErrNotConfigured = errors.New("storage is not configured")
	ErrInvalidRecord = errors.New("invalid record")
)

// AsDomainError classifies a store error for domain callers: missing users
// become model.ErrUserNotFound, everything else model.ErrPersistence. The
// store error stays in the chain.
func AsDomainError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%w: %w", model.ErrUserNotFound, err)
	default:
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
}
