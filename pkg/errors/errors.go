// Package errors provides the module's structured error taxonomy.
//
// Every error that crosses a Producer/Consumer/adapter boundary is an
// *AppError carrying a stable Code, a Retryable flag the resilience
// middleware consults, and a Cause chain back to the originating SDK error.
package errors

import (
	"errors"
	"fmt"
)

// Error codes shared across the module's error taxonomy.
const (
	CodeConnection          = "CONNECTION_ERROR"
	CodeSerialization       = "SERIALIZATION_ERROR"
	CodePublish             = "PUBLISH_ERROR"
	CodeConsume             = "CONSUME_ERROR"
	CodeCircuitOpen         = "CIRCUIT_OPEN"
	CodeConfiguration       = "CONFIGURATION_ERROR"
	CodeTimeout             = "TIMEOUT_ERROR"
	CodeSchemaValidation    = "SCHEMA_VALIDATION_ERROR"
	CodeNotImplemented      = "NOT_IMPLEMENTED"
	CodeInternal            = "INTERNAL_ERROR"
	CodeCanceled            = "CANCELED"
)

// AppError is the base error type for the module. Every error surfaced
// across package boundaries is either an *AppError or is wrapped into one
// by From before it crosses an adapter/contract boundary.
type AppError struct {
	Message   string
	Code      string
	Retryable bool
	Cause     error
	Details   map[string]any
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails attaches structured context and returns the same error for chaining.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// New constructs an AppError with an explicit code and retryability.
func New(code, message string, retryable bool, cause error) *AppError {
	return &AppError{Message: message, Code: code, Retryable: retryable, Cause: cause}
}

// Wrap wraps err as an AppError, preserving its code/retryability if it
// already is one, otherwise classifying it as a non-retryable internal error.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return &AppError{Message: message, Code: ae.Code, Retryable: ae.Retryable, Cause: err}
	}
	return &AppError{Message: message, Code: CodeInternal, Retryable: false, Cause: err}
}

// From converts an arbitrary recovered value (error, string, or anything
// else) into an AppError. This always succeeds, per the taxonomy's
// "construction from an arbitrary caught value must always succeed" rule.
func From(v any) *AppError {
	switch x := v.(type) {
	case nil:
		return &AppError{Message: "unknown error", Code: CodeInternal}
	case *AppError:
		return x
	case error:
		return Wrap(x, x.Error())
	default:
		return &AppError{Message: fmt.Sprintf("%v", x), Code: CodeInternal}
	}
}

// Is reports whether err is an AppError with the given code.
func Is(err error, code string) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// ConnectionError wraps a transport failure during connect, publish, or receive.
func ConnectionError(cause error) *AppError {
	return New(CodeConnection, "connection failure", true, cause)
}

// SerializationError wraps an encode/decode failure.
func SerializationError(cause error) *AppError {
	return New(CodeSerialization, "serialization failure", false, cause)
}

// PublishError wraps a broker rejection or timeout on send.
func PublishError(cause error) *AppError {
	return New(CodePublish, "publish failed", true, cause)
}

// ConsumeError wraps a broker error returned during receive.
func ConsumeError(cause error) *AppError {
	return New(CodeConsume, "consume failed", true, cause)
}

// CircuitOpenError is returned when the circuit breaker refuses a call
// without invoking the underlying operation. Never retryable: the retry
// engine must not loop on an open circuit.
func CircuitOpenError() *AppError {
	return New(CodeCircuitOpen, "circuit breaker is open", false, nil)
}

// ConfigurationError wraps an invalid configuration value.
func ConfigurationError(message string, cause error) *AppError {
	return New(CodeConfiguration, message, false, cause)
}

// TimeoutError wraps an operation that exceeded its deadline.
func TimeoutError(operation string, cause error) *AppError {
	return New(CodeTimeout, "operation timed out: "+operation, true, cause)
}

// SchemaValidationError wraps a schema-typed serializer's rejection of a payload.
func SchemaValidationError(cause error) *AppError {
	return New(CodeSchemaValidation, "schema validation failed", false, cause)
}

// NotImplementedError marks an optional operation unsupported by a backend.
func NotImplementedError(operation string) *AppError {
	return New(CodeNotImplemented, "not implemented: "+operation, false, nil)
}

// CanceledError wraps context cancellation surfaced through the retry engine.
func CanceledError(cause error) *AppError {
	return New(CodeCanceled, "operation canceled", false, cause)
}
