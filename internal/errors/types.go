package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeCorrelation   ErrorType = "correlation_miss"
	ErrorTypeMalformed     ErrorType = "malformed_upstream"
	ErrorTypeNoFulfillment ErrorType = "no_matching_fulfillment"
	ErrorTypeUpstream      ErrorType = "upstream_transport"
	ErrorTypeDuplicate     ErrorType = "duplicate"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeInternal      ErrorType = "internal"
)

// BAPError is the base error type for all application errors
type BAPError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface
func (e *BAPError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause
func (e *BAPError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *BAPError) WithContext(key string, value any) *BAPError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// HTTPStatus maps the error type to the status code returned to callers.
func (e *BAPError) HTTPStatus() int {
	switch e.Type {
	case ErrorTypeValidation, ErrorTypeMalformed:
		return http.StatusBadRequest
	case ErrorTypeCorrelation, ErrorTypeNoFulfillment, ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeTimeout:
		return http.StatusRequestTimeout
	case ErrorTypeDuplicate:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new BAPError
func New(errorType ErrorType, message string) *BAPError {
	return &BAPError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errorType ErrorType, message string) *BAPError {
	return &BAPError{
		Type:    errorType,
		Message: message,
		Cause:   err,
		Context: make(map[string]any),
	}
}

// Validation creates a validation error naming the offending field(s)
func Validation(message string) *BAPError {
	return New(ErrorTypeValidation, message)
}

// CorrelationMiss reports an absent prior-stage record. The stage and the
// key that was searched are attached so a caller can tell which step of the
// pipeline never happened.
func CorrelationMiss(stage string, key map[string]any) *BAPError {
	e := New(ErrorTypeCorrelation, fmt.Sprintf("no %s record found", stage))
	e.Context["stage"] = stage
	for k, v := range key {
		e.Context[k] = v
	}
	return e
}

// MalformedUpstream reports a stored payload that lacks an expected nested
// path. Financial fields are never defaulted; the missing path is named.
func MalformedUpstream(stage, path string) *BAPError {
	e := New(ErrorTypeMalformed, fmt.Sprintf("%s payload missing %s", stage, path))
	e.Context["stage"] = stage
	e.Context["path"] = path
	return e
}

// NoMatchingFulfillment reports that the seller offers no fulfillment of the
// requested type. Terminal, not retried.
func NoMatchingFulfillment(fulfillmentType string) *BAPError {
	e := New(ErrorTypeNoFulfillment, fmt.Sprintf("no fulfillment with type %q offered", fulfillmentType))
	e.Context["fulfillment_type"] = fulfillmentType
	return e
}

// Upstream creates an upstream transport error
func Upstream(message string, err error) *BAPError {
	return Wrap(err, ErrorTypeUpstream, message)
}

// Duplicate creates a duplicate-delivery error
func Duplicate(messageID string) *BAPError {
	e := New(ErrorTypeDuplicate, fmt.Sprintf("message %s already stored", messageID))
	e.Context["message_id"] = messageID
	return e
}

// NotFound creates a not found error
func NotFound(resource string) *BAPError {
	return New(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource))
}

// Timeout creates a timeout error
func Timeout(operation string) *BAPError {
	return New(ErrorTypeTimeout, fmt.Sprintf("operation %s timed out", operation))
}

// Configuration creates a configuration error
func Configuration(message string) *BAPError {
	return New(ErrorTypeConfiguration, message)
}

// Internal creates an internal error
func Internal(message string) *BAPError {
	return New(ErrorTypeInternal, message)
}

// TypeOf extracts the error type, defaulting to internal for plain errors.
func TypeOf(err error) ErrorType {
	var be *BAPError
	if errors.As(err, &be) {
		return be.Type
	}
	return ErrorTypeInternal
}

// Is reports whether err carries the given type.
func Is(err error, t ErrorType) bool {
	return TypeOf(err) == t
}

// From returns err as a BAPError, wrapping plain errors as internal.
func From(err error) *BAPError {
	var be *BAPError
	if errors.As(err, &be) {
		return be
	}
	return Wrap(err, ErrorTypeInternal, "unexpected failure")
}
