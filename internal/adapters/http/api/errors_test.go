package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	service "github.com/okian/pointsboard/internal/app"
	"github.com/okian/pointsboard/internal/domain/model"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{NewKind("op", ErrBadRequest), http.StatusBadRequest},
		{Wrap("op", fmt.Errorf("award: %w", model.ErrUnknownAction)), http.StatusBadRequest},
		{Wrap("op", model.ErrInvalidTimeframe), http.StatusBadRequest},
		{Wrap("op", model.ErrInvalidLimit), http.StatusBadRequest},
		{Wrap("op", model.ErrUserNotFound), http.StatusNotFound},
		{Wrap("op", model.ErrAchievementNotFound), http.StatusNotFound},
		{Wrap("op", fmt.Errorf("update 0: %w", model.ErrAlreadyAwarded)), http.StatusConflict},
		{Wrap("op", service.ErrBackpressure), http.StatusTooManyRequests},
		{Wrap("op", service.ErrStopped), http.StatusServiceUnavailable},
		{Wrap("op", model.ErrPersistence), http.StatusInternalServerError},
		{Wrap("op", errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got, _ := statusFor(tc.err); got != tc.status {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.status)
		}
	}
}

func TestOpError(t *testing.T) {
	cause := errors.New("eof")
	err := WrapKind("api.submit_award", ErrBadRequest, cause)
	if !errors.Is(err, ErrBadRequest) || !errors.Is(err, cause) {
		t.Fatalf("expected kind and cause in chain: %v", err)
	}
	if got := err.Error(); got != "api.submit_award: bad request: eof" {
		t.Fatalf("unexpected message %q", got)
	}
	if Wrap("op", nil) != nil {
		t.Fatal("Wrap(nil) must stay nil")
	}
}
