package errors

import "fmt"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AppError carries the error taxonomy used across the state containers.
// UserMessage is what the UI layer is expected to surface as an alert.
type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

// NewValidationError rejects malformed input before any mutation happens.
func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        "E110",
		Message:     msg,
		UserMessage: "Invalid request",
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

// NewNotAuthenticatedError indicates an operation that requires a signed-in
// account was invoked without one.
func NewNotAuthenticatedError() *AppError {
	return &AppError{
		Code:        "E100",
		Message:     "operation requires an authenticated account",
		UserMessage: "Please sign in to continue",
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

// NewInvalidAmountError rejects a non-positive currency amount before any
// mutation happens.
func NewInvalidAmountError(amount int64) *AppError {
	return &AppError{
		Code:        "E101",
		Message:     fmt.Sprintf("amount must be positive, got %d", amount),
		UserMessage: "Invalid amount",
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

// NewUnsupportedLanguageError rejects a locale code outside the supported set.
func NewUnsupportedLanguageError(code string) *AppError {
	return &AppError{
		Code:        "E102",
		Message:     fmt.Sprintf("unsupported language: %s", code),
		UserMessage: "This language is not supported",
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

// NewNoSubscriptionError indicates a cancel or auto-renew toggle with no
// subscription to act on.
func NewNoSubscriptionError() *AppError {
	return &AppError{
		Code:        "E103",
		Message:     "no active subscription",
		UserMessage: "You have no active subscription",
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

// NewStorageError wraps a failure of the durable key-value store.
func NewStorageError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        "E200",
		Message:     fmt.Sprintf("storage error: %s", underlyingMsg),
		UserMessage: "Could not save your changes, please try again",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

// NewRemoteError wraps a backend or network failure. Local state is left
// unchanged by the caller when this is returned.
func NewRemoteError(operation string, cause error) *AppError {
	return &AppError{
		Code:        "E300",
		Message:     fmt.Sprintf("remote error: %s", operation),
		UserMessage: "Service temporarily unavailable",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}
