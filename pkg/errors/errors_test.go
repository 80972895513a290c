package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"studylink/internal/core/domain"
)

func TestAppErrorMessage(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "bad payload", http.StatusBadRequest)
	if got := err.Error(); got != "INVALID_INPUT: bad payload" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestAppErrorIncludesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapError(cause, ErrCodeInternal, "storage failed", http.StatusInternalServerError)

	if !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("Error() should mention cause, got %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatal("wrapped error must satisfy errors.Is on its cause")
	}
}

func TestWithContextAccumulates(t *testing.T) {
	err := NewAppError(ErrCodeConflict, "duplicate", http.StatusConflict).
		WithContext("meeting_id", "m1").
		WithContext("attempt", 2)

	if err.Context["meeting_id"] != "m1" {
		t.Errorf("Context[meeting_id] = %v", err.Context["meeting_id"])
	}
	if err.Context["attempt"] != 2 {
		t.Errorf("Context[attempt] = %v", err.Context["attempt"])
	}
}

func TestGetAppErrorUnwrapsChain(t *testing.T) {
	app := NewNotFoundError("meeting")
	wrapped := fmt.Errorf("handler: %w", app)

	got := GetAppError(wrapped)
	if got == nil {
		t.Fatal("expected AppError from wrapped chain")
	}
	if got.Code != ErrCodeNotFound {
		t.Fatalf("code = %v, want NOT_FOUND", got.Code)
	}
	if GetAppError(errors.New("plain")) != nil {
		t.Fatal("plain error must not yield an AppError")
	}
}

func TestIsAppError(t *testing.T) {
	if !IsAppError(NewInternalError("x")) {
		t.Fatal("expected true for AppError")
	}
	if IsAppError(errors.New("y")) {
		t.Fatal("expected false for plain error")
	}
}

func TestFromDomainMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		code   ErrorCode
		status int
	}{
		{domain.ErrMeetingNotFound, ErrCodeNotFound, http.StatusNotFound},
		{domain.ErrMeetingExists, ErrCodeConflict, http.StatusConflict},
		{domain.ErrMeetingEnded, ErrCodeGone, http.StatusGone},
		{domain.ErrNotHost, ErrCodeForbidden, http.StatusForbidden},
		{errors.New("anything else"), ErrCodeInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		got := FromDomain(fmt.Errorf("op: %w", tc.err))
		if got.Code != tc.code {
			t.Errorf("FromDomain(%v).Code = %v, want %v", tc.err, got.Code, tc.code)
		}
		if got.HTTPStatus != tc.status {
			t.Errorf("FromDomain(%v).HTTPStatus = %d, want %d", tc.err, got.HTTPStatus, tc.status)
		}
	}

	if FromDomain(nil) != nil {
		t.Fatal("FromDomain(nil) must be nil")
	}
}

func TestConstructorStatuses(t *testing.T) {
	cases := []struct {
		err    *AppError
		status int
	}{
		{NewInvalidInputError("x"), http.StatusBadRequest},
		{NewUnauthorizedError("x"), http.StatusUnauthorized},
		{NewForbiddenError("x"), http.StatusForbidden},
		{NewConflictError("x"), http.StatusConflict},
		{NewRateLimitError(), http.StatusTooManyRequests},
		{NewServiceUnavailableError("x"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		if tc.err.HTTPStatus != tc.status {
			t.Errorf("%v: status = %d, want %d", tc.err.Code, tc.err.HTTPStatus, tc.status)
		}
	}
}
