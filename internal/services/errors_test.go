package services_test

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"spectral/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrUnavailable, "narrative", "complete", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"narrative", "complete", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestCodeMapping(t *testing.T) {
	cases := []struct {
		marker error
		code   string
		status int
	}{
		{services.ErrValidation, "VALIDATION_ERROR", http.StatusBadRequest},
		{services.ErrNotFound, "NOT_FOUND", http.StatusNotFound},
		{services.ErrAlreadyExists, "ALREADY_EXISTS", http.StatusConflict},
		{services.ErrForbidden, "FORBIDDEN", http.StatusForbidden},
		{services.ErrOutOfRange, "OUT_OF_RANGE", http.StatusUnprocessableEntity},
		{services.ErrRateLimited, "RATE_LIMITED", http.StatusTooManyRequests},
		{services.ErrUnavailable, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable},
		{services.ErrInternal, "INTERNAL", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		wrapped := services.Wrap(tc.marker, "stage", "op", "msg", nil)
		if got := services.Code(wrapped); got != tc.code {
			t.Errorf("Code(%v) = %q, want %q", tc.marker, got, tc.code)
		}
		if got := services.HTTPStatus(wrapped); got != tc.status {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.marker, got, tc.status)
		}
	}

	if got := services.Code(errors.New("plain")); got != "INTERNAL" {
		t.Fatalf("unclassified error code = %q, want INTERNAL", got)
	}
}

func TestRetryable(t *testing.T) {
	if services.Retryable(nil) {
		t.Fatal("nil error must not be retryable")
	}
	if !services.Retryable(services.Wrap(services.ErrRateLimited, "", "", "throttled", nil)) {
		t.Fatal("rate limited errors are retryable")
	}
	if !services.Retryable(services.Wrap(services.ErrUnavailable, "", "", "down", nil)) {
		t.Fatal("unavailable errors are retryable")
	}
	if services.Retryable(services.Wrap(services.ErrValidation, "", "", "bad", nil)) {
		t.Fatal("validation errors are permanent")
	}
}
