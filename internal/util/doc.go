// Package util provides shared types and helpers for the gateway.
//
// # Error Types
//
// The dispatch path returns typed results rather than panicking across
// component boundaries. Every failure a request can hit maps to one of:
//
//   - RouteNotFoundError: no route matched (404)
//   - ErrNoServicesAvailable: the load balancer had nothing to lease (503)
//   - CircuitOpenError: the route's breaker rejected the call (503, configurable)
//   - TimeoutError: a QoS or route timeout fired (503)
//   - TransportError: the downstream could not be reached (502)
//   - ErrRequestCanceled: the caller went away (499)
//
// # Context Helpers
//
//	ctx = util.ContextWithRequestID(ctx, "req-123")
//	requestID := util.RequestIDFromContext(ctx)
package util
