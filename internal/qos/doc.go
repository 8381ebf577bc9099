// Package qos builds and caches the per-route resilience pipeline: a
// circuit breaker wrapping a timeout around the downstream call.
package qos
