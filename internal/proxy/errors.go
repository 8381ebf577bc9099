package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vyrodovalexey/routegw/internal/util"
)

// StatusClientClosedRequest is reported when the caller went away before
// the downstream answered.
const StatusClientClosedRequest = 499

// Dispatch stages reported by DispatchError.
const (
	OpMatch    = "match_route"
	OpLease    = "lease_instance"
	OpBuildURL = "build_url"
	OpSend     = "send"
)

// ErrNilCatalog indicates that a dispatcher was given no route catalog.
var ErrNilCatalog = errors.New("route catalog is required")

// DispatchError describes the stage at which a request failed.
type DispatchError struct {
	Op      string // Stage that failed
	Route   string // Route key if applicable
	Target  string // Downstream address if applicable
	Message string // Human-readable message
	Cause   error  // Underlying error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	if e.Route != "" && e.Target != "" {
		return e.formatWithRouteAndTarget()
	}
	if e.Route != "" {
		return e.formatWithRoute()
	}
	return e.formatBasic()
}

func (e *DispatchError) formatWithRouteAndTarget() string {
	if e.Cause != nil {
		return fmt.Sprintf("dispatch error [%s] route=%s target=%s: %s: %v",
			e.Op, e.Route, e.Target, e.Message, e.Cause)
	}
	return fmt.Sprintf("dispatch error [%s] route=%s target=%s: %s",
		e.Op, e.Route, e.Target, e.Message)
}

func (e *DispatchError) formatWithRoute() string {
	if e.Cause != nil {
		return fmt.Sprintf("dispatch error [%s] route=%s: %s: %v",
			e.Op, e.Route, e.Message, e.Cause)
	}
	return fmt.Sprintf("dispatch error [%s] route=%s: %s", e.Op, e.Route, e.Message)
}

func (e *DispatchError) formatBasic() string {
	if e.Cause != nil {
		return fmt.Sprintf("dispatch error [%s]: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("dispatch error [%s]: %s", e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *DispatchError) Unwrap() error {
	return e.Cause
}

// NewDispatchError creates a new DispatchError.
func NewDispatchError(op, route, target, message string, cause error) *DispatchError {
	return &DispatchError{
		Op:      op,
		Route:   route,
		Target:  target,
		Message: message,
		Cause:   cause,
	}
}

// errorClass is the client-facing rendering of a failure.
type errorClass struct {
	status  int
	message string
}

// classify maps err to the status and message returned to the client.
// circuitOpenStatus is the configured status for an open circuit.
func classify(err error, circuitOpenStatus int) errorClass {
	switch {
	case errors.Is(err, util.ErrNotFound):
		return errorClass{http.StatusNotFound, "no matching route"}
	case util.IsCanceled(err), errors.Is(err, context.Canceled):
		return errorClass{StatusClientClosedRequest, "client closed request"}
	case errors.Is(err, util.ErrCircuitOpen):
		return errorClass{circuitOpenStatus, "circuit breaker is open"}
	case errors.Is(err, util.ErrTimeout):
		return errorClass{http.StatusServiceUnavailable, "downstream timed out"}
	case errors.Is(err, util.ErrNoServicesAvailable):
		return errorClass{http.StatusServiceUnavailable, "no services available"}
	case errors.Is(err, util.ErrBackendUnavail):
		return errorClass{http.StatusBadGateway, "failed to reach downstream"}
	default:
		return errorClass{http.StatusInternalServerError, "failed to dispatch request"}
	}
}

// errorText returns the lower-case status text used in error bodies.
func errorText(status int) string {
	if status == StatusClientClosedRequest {
		return "client closed request"
	}
	if text := http.StatusText(status); text != "" {
		return strings.ToLower(text)
	}
	return "error"
}
