// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package apperr defines the centralized error handling framework for the identity service.

It provides a rich error type that bridges the gap between low-level Domain/Storage
errors and high-level HTTP responses.

Architecture:

  - AppError: A struct containing machine-readable ErrorCode and user-friendly messages.
  - Taxonomy: Credential, token, throttling and dependency failures have fixed codes.
  - Mapping: Explicit mapping from AppError to standard HTTP Status Codes.

Every error that leaves the service layer should be wrapped as an [AppError] to ensure
consistent API responses. None of these errors are retried by the core.
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// # Error Codes

const (
	CodeNotFound              = "NOT_FOUND"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeForbidden             = "FORBIDDEN"
	CodeConflict              = "CONFLICT"
	CodeValidation            = "VALIDATION_ERROR"
	CodeRateLimited           = "RATE_LIMITED"
	CodeInternal              = "INTERNAL_ERROR"
	CodeInvalidCredentials    = "INVALID_CREDENTIALS"
	CodeAccountNotFound       = "ACCOUNT_NOT_FOUND"
	CodeAlreadyRegistered     = "ALREADY_REGISTERED"
	CodeTokenExpired          = "TOKEN_EXPIRED"
	CodeTokenInvalid          = "TOKEN_INVALID"
	CodeTokenRevoked          = "TOKEN_REVOKED"
	CodeDependencyUnavailable = "DEPENDENCY_UNAVAILABLE"
	CodeDeliveryFailed        = "DELIVERY_FAILED"
)

// AppError is the canonical error type for the identity API.
//
// It carries an HTTP status code, a machine-readable code, a client-safe
// message, and an optional slice of field-level validation errors.
//
// # Security
//
// The Cause field is for server-side logging only and is never sent to clients
// to avoid leaking internal implementation details (e.g., SQL queries).
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "NOT_FOUND", "CONFLICT").
	Code string `json:"code"`
	// Message is a human-readable description safe to return to the client.
	Message string `json:"error"`
	// HTTPStatus is the HTTP response status code.
	HTTPStatus int `json:"-"`
	// Cause is the underlying error, used for server-side logging only.
	Cause error `json:"-"`
	// Details holds per-field validation errors for VALIDATION_ERROR responses.
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the JSON field name that failed validation.
	Field string `json:"field"`
	// Message is the human-readable description of the failure.
	Message string `json:"message"`
}

// Error implements the error interface. It returns the client-safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// Is reports whether target is an [*AppError] with the same Code, so callers
// can match against the sentinels below with [errors.Is].
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// # Sentinels

// Sentinels for [errors.Is] matching. Use the constructors to build values
// returned to callers; these exist only for comparison.
var (
	ErrInvalidCredentials    = &AppError{Code: CodeInvalidCredentials}
	ErrAccountNotFound       = &AppError{Code: CodeAccountNotFound}
	ErrAlreadyRegistered     = &AppError{Code: CodeAlreadyRegistered}
	ErrTokenExpired          = &AppError{Code: CodeTokenExpired}
	ErrTokenInvalid          = &AppError{Code: CodeTokenInvalid}
	ErrTokenRevoked          = &AppError{Code: CodeTokenRevoked}
	ErrRateLimited           = &AppError{Code: CodeRateLimited}
	ErrDependencyUnavailable = &AppError{Code: CodeDependencyUnavailable}
)

// # Client Errors (4xx)

// NotFound creates a 404 [AppError] for a named resource.
//
// Example:
//
//	apperr.NotFound("Account") // Returns "Account not found"
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
	}
}

// Unauthorized creates a 401 [AppError].
func Unauthorized(msg string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    msg,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a 403 [AppError].
func Forbidden(msg string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    msg,
		HTTPStatus: http.StatusForbidden,
	}
}

// Conflict creates a 409 [AppError] for duplicate or unique-constraint violations.
func Conflict(msg string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    msg,
		HTTPStatus: http.StatusConflict,
	}
}

// ValidationError creates a 400 [AppError] with optional per-field details.
func ValidationError(msg string, details ...FieldError) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// RateLimited creates a 429 [AppError].
func RateLimited(retryAfterSeconds int) *AppError {
	return &AppError{
		Code:       CodeRateLimited,
		Message:    fmt.Sprintf("Too many requests. Try again in %ds.", retryAfterSeconds),
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// # Credential & Token Errors

// InvalidCredentials creates a 401 [AppError]. Wrong password, wrong OTP,
// expired OTP and consumed OTP all share this value so callers cannot tell
// which factor failed.
func InvalidCredentials() *AppError {
	return &AppError{
		Code:       CodeInvalidCredentials,
		Message:    "Invalid credentials",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// AccountNotFound creates a 404 [AppError] for flows that need an existing account.
func AccountNotFound(msg string) *AppError {
	return &AppError{
		Code:       CodeAccountNotFound,
		Message:    msg,
		HTTPStatus: http.StatusNotFound,
	}
}

// AlreadyRegistered creates a 409 [AppError] for uniqueness conflicts on signup.
func AlreadyRegistered(msg string) *AppError {
	return &AppError{
		Code:       CodeAlreadyRegistered,
		Message:    msg,
		HTTPStatus: http.StatusConflict,
	}
}

// TokenExpired creates a 401 [AppError] for a well-signed token past its expiry.
func TokenExpired(cause error) *AppError {
	return &AppError{
		Code:       CodeTokenExpired,
		Message:    "Token has expired",
		HTTPStatus: http.StatusUnauthorized,
		Cause:      cause,
	}
}

// TokenInvalid creates a 401 [AppError] for malformed or wrongly signed tokens.
func TokenInvalid(cause error) *AppError {
	return &AppError{
		Code:       CodeTokenInvalid,
		Message:    "Token is invalid",
		HTTPStatus: http.StatusUnauthorized,
		Cause:      cause,
	}
}

// TokenRevoked creates a 401 [AppError] for a token that was explicitly revoked.
func TokenRevoked() *AppError {
	return &AppError{
		Code:       CodeTokenRevoked,
		Message:    "Token has been revoked",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// # Server Errors (5xx)

// Internal creates a 500 [AppError] wrapping an unexpected server-side error.
// The cause is stored for logging but is never sent to the client.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// DependencyUnavailable creates a 503 [AppError] for a store or channel that
// timed out or refused the connection. Callers may retry with backoff.
func DependencyUnavailable(dependency string, cause error) *AppError {
	return &AppError{
		Code:       CodeDependencyUnavailable,
		Message:    "A required dependency is unavailable: " + dependency,
		HTTPStatus: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

// DeliveryFailed creates a 502 [AppError] when the notification channel
// refused an OTP message.
func DeliveryFailed(kind string) *AppError {
	return &AppError{
		Code:       CodeDeliveryFailed,
		Message:    "Failed to send OTP message to your " + kind,
		HTTPStatus: http.StatusBadGateway,
	}
}

// # Helpers

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}
