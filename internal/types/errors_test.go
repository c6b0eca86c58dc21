package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppErrorImplementsError(t *testing.T) {
	var _ error = (*AppError)(nil)
}

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeValidationInvalidTime,
		Message: "notification time must be HH:MM",
	}

	expected := "validation_invalid_notification_time: notification time must be HH:MM"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorErrorFormatWithCause(t *testing.T) {
	appErr := NewAppError(ErrCodeInternalDB, "failed to list recipients", errors.New("conn refused"))

	expected := "internal_database_error: failed to list recipients: conn refused"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("database connection failed")
	appErr := NewAppError(ErrCodeInternalDB, "failed to query users", underlying)

	if appErr.Unwrap() != underlying {
		t.Errorf("Unwrap() = %v, want %v", appErr.Unwrap(), underlying)
	}
	if !errors.Is(appErr, underlying) {
		t.Error("errors.Is should find the underlying error")
	}
}

func TestAppErrorErrorsAs(t *testing.T) {
	appErr := NewAppError(ErrCodeUpstreamEmailProvider, "smtp dial failed", nil)
	wrapped := fmt.Errorf("run failed: %w", appErr)

	var target *AppError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As should find AppError in the chain")
	}
	if target.Code != ErrCodeUpstreamEmailProvider {
		t.Errorf("Code = %q, want %q", target.Code, ErrCodeUpstreamEmailProvider)
	}
}

func TestAppErrorWithDetails(t *testing.T) {
	original := NewAppError(ErrCodeValidationInvalidTimezone, "unknown timezone", nil)
	original.Details = map[string]any{"user_id": "u1"}

	enriched := original.WithDetails(map[string]any{"timezone": "Mars/Olympus"})

	if len(original.Details) != 1 {
		t.Errorf("original details mutated: %v", original.Details)
	}
	if enriched.Details["user_id"] != "u1" || enriched.Details["timezone"] != "Mars/Olympus" {
		t.Errorf("merged details = %v", enriched.Details)
	}
	if enriched.Code != original.Code {
		t.Errorf("Code = %q, want %q", enriched.Code, original.Code)
	}
}
