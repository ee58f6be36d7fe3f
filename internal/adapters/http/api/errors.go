package api

import (
	"errors"
	"net/http"

	"github.com/okian/pointsboard/internal/adapters/repository"
	service "github.com/okian/pointsboard/internal/app"
	"github.com/okian/pointsboard/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("not found")
)

// opError records the handler that failed, the error kind used to pick a
// status, and the underlying cause.
type opError struct {
	op    string
	kind  error
	cause error
}

func (e *opError) Error() string {
	switch {
	case e.kind != nil && e.cause != nil:
		return e.op + ": " + e.kind.Error() + ": " + e.cause.Error()
	case e.kind != nil:
		return e.op + ": " + e.kind.Error()
	case e.cause != nil:
		return e.op + ": " + e.cause.Error()
	default:
		return e.op
	}
}

func (e *opError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.kind != nil {
		out = append(out, e.kind)
	}
	if e.cause != nil {
		out = append(out, e.cause)
	}
	return out
}

// NewKind returns an error of kind raised by op.
func NewKind(op string, kind error) error {
	return &opError{op: op, kind: kind}
}

// Wrap attaches op to err. Nil stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &opError{op: op, cause: err}
}

// WrapKind attaches op and kind to err.
func WrapKind(op string, kind, err error) error {
	return &opError{op: op, kind: kind, cause: err}
}

// statusFor maps an error chain to an HTTP status and a short code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, model.ErrUnknownAction),
		errors.Is(err, model.ErrInvalidPoints),
		errors.Is(err, model.ErrInvalidTimeframe),
		errors.Is(err, model.ErrInvalidLimit):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrNotFound),
		errors.Is(err, model.ErrUserNotFound),
		errors.Is(err, model.ErrAchievementNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrAlreadyAwarded):
		return http.StatusConflict, "already_awarded"
	case errors.Is(err, service.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrStopped):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
