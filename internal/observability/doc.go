// Package observability provides logging, metrics, and tracing
// functionality for the gateway.
//
// Structured logging goes through the Logger interface backed by zap:
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Dispatch metrics (route matches, leases, breaker transitions, timeouts,
// pooled invokers) are collected by Metrics and exposed through Handler.
// Outbound calls and inbound requests are traced with OpenTelemetry.
package observability
