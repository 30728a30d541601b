// Package apperr provides structured error types for the monitoring gateway.
//
// Every failing operation produces an *Error carrying a category, a stable
// string code, and a safe client-facing message. The package also owns the
// mapping into the two wire representations: JSON-RPC error objects for the
// MCP endpoint and {code, message, details} bodies for plain HTTP errors.
//
// Validation errors are fully descriptive. Internal and adapter errors are
// logged in detail server-side but surface to clients only as an opaque
// message plus a stable code.
package apperr

import (
	"fmt"
	"net/http"

	"github.com/paulstaab/systemd-monitoring-mcp/internal/rpc"
)

// Kind categorizes an error for status and wire-code mapping.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindInternal     Kind = "internal"
)

// Error is the application error type.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	Underlying error
	Details    map[string]interface{}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Code, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is matches errors by kind and code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind && e.Code == t.Code
	}
	return false
}

// WithDetails attaches a detail value and returns the error for chaining.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Validation creates a parameter validation error (JSON-RPC -32602).
func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

// Unauthorized creates an authentication error (HTTP 401).
func Unauthorized(code, message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: code, Message: message}
}

// Forbidden creates an authorization error (HTTP 403).
func Forbidden(code, message string) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: message}
}

// NotFound creates a routing error (JSON-RPC -32601) for unknown tools
// and resources.
func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// Internal creates an opaque internal error wrapping underlying. The
// underlying detail never reaches clients.
func Internal(message string, underlying error) *Error {
	return &Error{Kind: KindInternal, Code: "internal_error", Message: message, Underlying: underlying}
}

// HTTPStatus returns the HTTP status used when the error is surfaced on a
// plain HTTP (non JSON-RPC) path.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// HTTPBody returns the {code, message, details} body for non-2xx HTTP
// responses. Internal errors are masked.
func (e *Error) HTTPBody() map[string]interface{} {
	code, message := e.Code, e.Message
	if e.Kind == KindInternal {
		message = "internal server error"
	}
	details := e.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	return map[string]interface{}{
		"code":    code,
		"message": message,
		"details": details,
	}
}

// RPC converts the error into a JSON-RPC error object. The stable string
// code travels in data.code so protocol codes stay within the closed
// -3260x set.
func (e *Error) RPC() *rpc.Error {
	switch e.Kind {
	case KindValidation:
		return rpc.NewErrorWithData(rpc.CodeInvalidParams, "Invalid params", e.errorData())
	case KindNotFound:
		return rpc.NewErrorWithData(rpc.CodeMethodNotFound, "Method not found", e.errorData())
	case KindUnauthorized, KindForbidden:
		return rpc.NewErrorWithData(-32001, "Unauthorized", e.errorData())
	default:
		return rpc.NewError(rpc.CodeInternalError, "Internal error")
	}
}

func (e *Error) errorData() map[string]interface{} {
	details := e.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	return map[string]interface{}{
		"code":    e.Code,
		"message": e.Message,
		"details": details,
	}
}

// ToRPC maps any error to a JSON-RPC error object, masking everything that
// is not an *Error.
func ToRPC(err error) *rpc.Error {
	if appErr, ok := err.(*Error); ok {
		return appErr.RPC()
	}
	if rpcErr, ok := err.(*rpc.Error); ok {
		return rpcErr
	}
	return rpc.NewError(rpc.CodeInternalError, "Internal error")
}
