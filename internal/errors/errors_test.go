package errors

import (
	"fmt"
	"testing"
)

func TestLeadError_Error(t *testing.T) {
	err := &LeadError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "lead not found",
	}

	expected := "NOT_FOUND: lead not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("text is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "text is required" {
		t.Errorf("Message = %q, want %q", err.Message, "text is required")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("lead", "01ABC")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["id"] != "01ABC" {
		t.Errorf("Details[id] = %v, want 01ABC", err.Details["id"])
	}
}

func TestNewTimeout(t *testing.T) {
	err := NewTimeout("transcribe")

	if err.Code != ErrTimeout {
		t.Errorf("Code = %q, want %q", err.Code, ErrTimeout)
	}
	if err.Status != 408 {
		t.Errorf("Status = %d, want 408", err.Status)
	}
}

func TestNewServiceError(t *testing.T) {
	t.Run("carries upstream status and code", func(t *testing.T) {
		err := NewServiceError(429, "RATE_LIMITED", "slow down")
		if err.Status != 429 {
			t.Errorf("Status = %d, want 429", err.Status)
		}
		if err.Message != "slow down" {
			t.Errorf("Message = %q, want %q", err.Message, "slow down")
		}
		if err.Details["upstream_code"] != "RATE_LIMITED" {
			t.Errorf("Details[upstream_code] = %v", err.Details["upstream_code"])
		}
	})

	t.Run("defaults", func(t *testing.T) {
		err := NewServiceError(0, "", "")
		if err.Status != 502 {
			t.Errorf("Status = %d, want 502", err.Status)
		}
		if err.Message == "" {
			t.Error("expected a default message")
		}
		if _, ok := err.Details["upstream_code"]; ok {
			t.Error("upstream_code should be omitted when empty")
		}
	})
}

func TestNewEmptyTranscript(t *testing.T) {
	err := NewEmptyTranscript()
	if err.Code != ErrEmptyTranscript || err.Status != 400 {
		t.Errorf("got %s/%d, want EMPTY_TRANSCRIPT/400", err.Code, err.Status)
	}
}

func TestNewStorage_Unwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := NewStorage(cause)

	if err.Code != ErrStorage {
		t.Errorf("Code = %q, want %q", err.Code, ErrStorage)
	}
	if err.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"matching code", NewNotFound("lead", "x"), ErrNotFound, true},
		{"different code", NewNotFound("lead", "x"), ErrTimeout, false},
		{"wrapped", fmt.Errorf("drain: %w", NewTimeout("extract")), ErrTimeout, true},
		{"plain error", fmt.Errorf("boom"), ErrInternal, false},
		{"nil", nil, ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", NewTimeout("x"), true},
		{"429", NewServiceError(429, "", ""), true},
		{"503", NewServiceError(503, "", ""), true},
		{"401", NewServiceError(401, "", ""), false},
		{"extraction failed", NewExtractionFailed("bad json"), false},
		{"empty transcript", NewEmptyTranscript(), false},
		{"plain", fmt.Errorf("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
