// Package errors defines the structured error taxonomy shared across the
// drivebench service. Synchronous rejections from the test executor
// (protected device, busy slot, unknown test type, invalid parameters) and
// asynchronous job failures (worker crash, tool failure, timeout) all carry
// an ErrorCode so the HTTP layer and persisted results can classify them
// without string matching.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeProtectedDevice indicates the target device hosts the running
	// operating system. This veto is never overridable.
	ErrCodeProtectedDevice ErrorCode = "protected_device"
	// ErrCodeDeviceBusy indicates a non-terminal job already holds the
	// device slot. Callers may retry once that job reaches a terminal state.
	ErrCodeDeviceBusy ErrorCode = "device_busy"
	// ErrCodeUnknownTestType indicates the requested test type has no
	// registered handler.
	ErrCodeUnknownTestType ErrorCode = "unknown_test_type"
	// ErrCodeInvalidParameters indicates test parameters failed validation
	// before any process was spawned.
	ErrCodeInvalidParameters ErrorCode = "invalid_parameters"
	// ErrCodeCapacity indicates the executor is at its configured
	// concurrent-test limit.
	ErrCodeCapacity ErrorCode = "capacity_exhausted"
	// ErrCodeWorkerCrashed indicates the isolated worker terminated
	// unexpectedly. The job is failed; the system remains healthy.
	ErrCodeWorkerCrashed ErrorCode = "worker_crashed"
	// ErrCodeToolFailure indicates the underlying test tool reported a
	// failure or exited nonzero.
	ErrCodeToolFailure ErrorCode = "tool_failure"
	// ErrCodeTimeout indicates a handler-imposed deadline expired.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeValidation indicates invalid input data outside test parameters.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeConflict indicates a conflict with existing data.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured application error with a code, message,
// and optional cause. It supports error wrapping and unwrapping for use with
// errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for
	// parameter validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// ProtectedDevice creates a new ProtectedDevice error for the given device path.
func ProtectedDevice(device string) *AppError {
	return &AppError{
		Code:    ErrCodeProtectedDevice,
		Message: fmt.Sprintf("device %s hosts the running operating system and cannot be tested", device),
	}
}

// DeviceBusy creates a new DeviceBusy error for the given device path.
func DeviceBusy(device string) *AppError {
	return &AppError{
		Code:    ErrCodeDeviceBusy,
		Message: fmt.Sprintf("a test is already running on %s", device),
	}
}

// UnknownTestType creates a new UnknownTestType error.
func UnknownTestType(testType string) *AppError {
	return &AppError{
		Code:    ErrCodeUnknownTestType,
		Message: fmt.Sprintf("unknown test type %q", testType),
	}
}

// InvalidParameters creates a new InvalidParameters error.
func InvalidParameters(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidParameters,
		Message: message,
	}
}

// InvalidParametersField creates a new InvalidParameters error for a specific field.
func InvalidParametersField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidParameters,
		Message: message,
		Field:   field,
	}
}

// CapacityExhausted creates a new Capacity error.
func CapacityExhausted(limit int) *AppError {
	return &AppError{
		Code:    ErrCodeCapacity,
		Message: fmt.Sprintf("concurrent test limit of %d reached", limit),
	}
}

// WorkerCrashed creates a new WorkerCrashed error wrapping the recovered cause.
func WorkerCrashed(cause error) *AppError {
	return &AppError{
		Code:    ErrCodeWorkerCrashed,
		Message: "test worker terminated unexpectedly",
		Cause:   cause,
	}
}

// ToolFailure creates a new ToolFailure error.
func ToolFailure(message string) *AppError {
	return &AppError{
		Code:    ErrCodeToolFailure,
		Message: message,
	}
}

// ToolFailuref creates a new ToolFailure error with formatted message.
func ToolFailuref(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeToolFailure,
		Message: fmt.Sprintf(format, args...),
	}
}

// Timeout creates a new Timeout error.
func Timeout(message string) *AppError {
	return &AppError{
		Code:    ErrCodeTimeout,
		Message: message,
	}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: message,
	}
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf(format, args...),
	}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
	}
}

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    ErrCodeConflict,
		Message: message,
	}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
	}
}

// Internalf creates a new Internal error with formatted message.
func Internalf(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsProtectedDevice checks if an error is a ProtectedDevice error.
func IsProtectedDevice(err error) bool {
	return isCode(err, ErrCodeProtectedDevice)
}

// IsDeviceBusy checks if an error is a DeviceBusy error.
func IsDeviceBusy(err error) bool {
	return isCode(err, ErrCodeDeviceBusy)
}

// IsUnknownTestType checks if an error is an UnknownTestType error.
func IsUnknownTestType(err error) bool {
	return isCode(err, ErrCodeUnknownTestType)
}

// IsInvalidParameters checks if an error is an InvalidParameters error.
func IsInvalidParameters(err error) bool {
	return isCode(err, ErrCodeInvalidParameters)
}

// IsCapacityExhausted checks if an error is a Capacity error.
func IsCapacityExhausted(err error) bool {
	return isCode(err, ErrCodeCapacity)
}

// IsWorkerCrashed checks if an error is a WorkerCrashed error.
func IsWorkerCrashed(err error) bool {
	return isCode(err, ErrCodeWorkerCrashed)
}

// IsToolFailure checks if an error is a ToolFailure error.
func IsToolFailure(err error) bool {
	return isCode(err, ErrCodeToolFailure)
}

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool {
	return isCode(err, ErrCodeTimeout)
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool {
	return isCode(err, ErrCodeConflict)
}

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool {
	return isCode(err, ErrCodeInternal)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
