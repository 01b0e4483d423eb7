package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a leadcap error code.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrEmptyTranscript  ErrorCode = "EMPTY_TRANSCRIPT"  // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrFileNotFound     ErrorCode = "FILE_NOT_FOUND"    // 404
	ErrTimeout          ErrorCode = "TIMEOUT"           // 408
	ErrNothingToUndo    ErrorCode = "NOTHING_TO_UNDO"   // 409
	ErrCancelled        ErrorCode = "CANCELLED"         // 499
	ErrServiceError     ErrorCode = "SERVICE_ERROR"     // upstream status, 502 if unknown
	ErrExtractionFailed ErrorCode = "EXTRACTION_FAILED" // 502
	ErrStorage          ErrorCode = "STORAGE"           // 500
	ErrInternal         ErrorCode = "INTERNAL"          // 500
)

// LeadError represents a structured error with code, status, and details.
type LeadError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *LeadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *LeadError) Unwrap() error {
	return e.Err
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *LeadError {
	return &LeadError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewEmptyTranscript creates a 400 error when transcription produced no usable text.
func NewEmptyTranscript() *LeadError {
	return &LeadError{
		Code:    ErrEmptyTranscript,
		Status:  400,
		Message: "no speech detected in recording",
	}
}

// NewNotFound creates a 404 error for a missing lead or pending capture.
func NewNotFound(kind, id string) *LeadError {
	return &LeadError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, id),
		Details: map[string]any{"kind": kind, "id": id},
	}
}

// NewFileNotFound creates a 404 error for a missing file.
func NewFileNotFound(path string) *LeadError {
	return &LeadError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewTimeout creates a 408 error for a remote call that exceeded its budget.
func NewTimeout(op string) *LeadError {
	return &LeadError{
		Code:    ErrTimeout,
		Status:  408,
		Message: fmt.Sprintf("%s timed out", op),
		Details: map[string]any{"operation": op},
	}
}

// NewNothingToUndo creates a 409 error when no capture can be undone.
func NewNothingToUndo() *LeadError {
	return &LeadError{
		Code:    ErrNothingToUndo,
		Status:  409,
		Message: "nothing to undo",
	}
}

// NewCancelled creates a 499 error for an operation aborted by its caller.
func NewCancelled(op string) *LeadError {
	return &LeadError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
		Details: map[string]any{"operation": op},
	}
}

// NewServiceError creates an error for a non-2xx extraction service response.
// status is the upstream HTTP status; upstreamCode is the service's own
// error code and may be empty.
func NewServiceError(status int, upstreamCode, msg string) *LeadError {
	if status == 0 {
		status = 502
	}
	if msg == "" {
		msg = fmt.Sprintf("extraction service returned status %d", status)
	}
	details := map[string]any{"upstream_status": status}
	if upstreamCode != "" {
		details["upstream_code"] = upstreamCode
	}
	return &LeadError{
		Code:    ErrServiceError,
		Status:  status,
		Message: msg,
		Details: details,
	}
}

// NewExtractionFailed creates a 502 error when the service answered but
// the body was not usable structured data.
func NewExtractionFailed(msg string) *LeadError {
	return &LeadError{
		Code:    ErrExtractionFailed,
		Status:  502,
		Message: msg,
	}
}

// NewStorage creates a 500 error wrapping a persistence failure.
func NewStorage(err error) *LeadError {
	msg := "storage error"
	if err != nil {
		msg = err.Error()
	}
	return &LeadError{
		Code:    ErrStorage,
		Status:  500,
		Message: msg,
		Err:     err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *LeadError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &LeadError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		Err:     err,
	}
}

// As returns the LeadError in err's chain, if any.
func As(err error) (*LeadError, bool) {
	var lErr *LeadError
	if stderrors.As(err, &lErr) {
		return lErr, true
	}
	return nil, false
}

// Is checks if an error is a LeadError with the given code.
func Is(err error, code ErrorCode) bool {
	if lErr, ok := As(err); ok {
		return lErr.Code == code
	}
	return false
}

// Retryable reports whether a failed remote call is worth retrying later:
// timeouts, rate limiting and upstream 5xx.
func Retryable(err error) bool {
	lErr, ok := As(err)
	if !ok {
		return false
	}
	switch lErr.Code {
	case ErrTimeout:
		return true
	case ErrServiceError:
		return lErr.Status == 429 || lErr.Status/100 == 5
	}
	return false
}
