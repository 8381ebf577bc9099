// Package requester sends requests to downstream services.
//
// Pool keeps one Invoker per route identity. An Invoker owns the route's
// outbound handler chain, its transport and cookie jar, and enforces the
// smaller of the route's QoS and route-level timeouts on every call.
// HandlerRegistry names the handler factories routes may reference.
package requester
