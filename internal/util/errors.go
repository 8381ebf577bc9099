// Package util provides utility functions and types for the gateway.
//
// # Error Conventions
//
// This project follows a standardized error pattern across all packages:
//
//   - Sentinel errors (errors.New) for well-known, stable conditions
//     that callers check with errors.Is(). Example: ErrNotFound.
//   - Structured error types for context-rich errors that carry
//     additional fields (e.g., TimeoutError, TransportError). Each type
//     implements Error(), Unwrap() (if wrapping), and Is().
//   - fmt.Errorf with %w for ad-hoc wrapping that adds context to an
//     existing error without introducing a new type.
package util

import (
	"errors"
	"fmt"
	"time"
)

// Common sentinel errors.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrTimeout             = errors.New("timeout")
	ErrCircuitOpen         = errors.New("circuit breaker open")
	ErrNoServicesAvailable = errors.New("no services available")
	ErrBackendUnavail      = errors.New("backend unavailable")
	ErrRequestCanceled     = errors.New("request canceled by caller")
	ErrConfigInvalid       = errors.New("invalid configuration")
)

// Timeout limits reported by TimeoutError.
const (
	TimeoutLimitQoS   = "qos"
	TimeoutLimitRoute = "route"
)

// ConfigError represents a configuration-related error.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigError) Is(target error) bool {
	if target == ErrConfigInvalid {
		return true
	}
	_, ok := target.(*ConfigError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorWithCause creates a new ConfigError with a cause.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}

// RouteNotFoundError represents a route not found error.
type RouteNotFoundError struct {
	Path   string
	Method string
}

// Error implements the error interface.
func (e *RouteNotFoundError) Error() string {
	return fmt.Sprintf("no route found for %s %s", e.Method, e.Path)
}

// Is checks if the error matches the target.
func (e *RouteNotFoundError) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	_, ok := target.(*RouteNotFoundError)
	return ok
}

// NewRouteNotFoundError creates a new RouteNotFoundError.
func NewRouteNotFoundError(method, path string) *RouteNotFoundError {
	return &RouteNotFoundError{Path: path, Method: method}
}

// ServicesUnavailableError is returned by a load balancer that has no instance to lease.
type ServicesUnavailableError struct {
	Balancer string
	Cause    error
}

// Error implements the error interface.
func (e *ServicesUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("no services available in %s: %v", e.Balancer, e.Cause)
	}
	return fmt.Sprintf("there were no services in %s", e.Balancer)
}

// Unwrap returns the underlying error.
func (e *ServicesUnavailableError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ServicesUnavailableError) Is(target error) bool {
	if target == ErrNoServicesAvailable {
		return true
	}
	_, ok := target.(*ServicesUnavailableError)
	return ok
}

// NewServicesUnavailableError creates a new ServicesUnavailableError.
func NewServicesUnavailableError(balancer string) *ServicesUnavailableError {
	return &ServicesUnavailableError{Balancer: balancer}
}

// NewServicesUnavailableErrorWithCause wraps a resolver failure.
func NewServicesUnavailableErrorWithCause(balancer string, cause error) *ServicesUnavailableError {
	return &ServicesUnavailableError{Balancer: balancer, Cause: cause}
}

// TransportError represents a downstream connectivity failure.
type TransportError struct {
	Route  string
	Target string
	Cause  error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("route %s: request to %s failed: %v", e.Route, e.Target, e.Cause)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *TransportError) Is(target error) bool {
	if target == ErrBackendUnavail {
		return true
	}
	_, ok := target.(*TransportError)
	return ok
}

// NewTransportError creates a new TransportError.
func NewTransportError(route, target string, cause error) *TransportError {
	return &TransportError{Route: route, Target: target, Cause: cause}
}

// TimeoutError represents a timeout that fired while calling a downstream.
// Limit names which configured limit fired (TimeoutLimitQoS or TimeoutLimitRoute).
type TimeoutError struct {
	Route    string
	Limit    string
	Duration time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("route %s: %s timeout after %v", e.Route, e.Limit, e.Duration)
}

// Is checks if the error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if target == ErrTimeout {
		return true
	}
	_, ok := target.(*TimeoutError)
	return ok
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(route, limit string, duration time.Duration) *TimeoutError {
	return &TimeoutError{Route: route, Limit: limit, Duration: duration}
}

// CircuitOpenError represents a circuit breaker open error.
type CircuitOpenError struct {
	Name  string
	State string
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %s is %s", e.Name, e.State)
}

// Is checks if the error matches the target.
func (e *CircuitOpenError) Is(target error) bool {
	if target == ErrCircuitOpen {
		return true
	}
	_, ok := target.(*CircuitOpenError)
	return ok
}

// NewCircuitOpenError creates a new CircuitOpenError.
func NewCircuitOpenError(name, state string) *CircuitOpenError {
	return &CircuitOpenError{Name: name, State: state}
}

// AsTimeout extracts a TimeoutError from err, if any.
func AsTimeout(err error) (*TimeoutError, bool) {
	var te *TimeoutError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsCanceled reports whether err is a caller-initiated cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrRequestCanceled)
}

// IsClientError returns true if the error is a client error (4xx).
func IsClientError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrRequestCanceled)
}

// IsServerError returns true if the error is a server error (5xx).
func IsServerError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrBackendUnavail) {
		return true
	}

	if errors.Is(err, ErrCircuitOpen) {
		return true
	}

	if errors.Is(err, ErrNoServicesAvailable) {
		return true
	}

	return errors.Is(err, ErrTimeout)
}
