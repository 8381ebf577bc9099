package route

import (
	"net/http"
	"time"
)

// Unlimited marks an absent QoS timeout.
const Unlimited time.Duration = -1

// Handler defaults applied when a route configures no handler options.
const (
	DefaultPooledConnectionLifetime = 120 * time.Second
)

// QoSOptions configures the circuit breaker and timeout of a route.
type QoSOptions struct {
	// ExceptionsAllowedBeforeBreaking is the failure threshold. Values
	// below 2 install no breaker.
	ExceptionsAllowedBeforeBreaking int
	DurationOfBreak                 time.Duration
	// Timeout is Unlimited when no QoS timeout applies.
	Timeout time.Duration
}

// Enabled reports whether any resilience strategy applies.
func (o QoSOptions) Enabled() bool {
	return !(o.ExceptionsAllowedBeforeBreaking == 0 && o.Timeout == Unlimited)
}

// HasBreaker reports whether a circuit breaker is installed.
func (o QoSOptions) HasBreaker() bool {
	return o.ExceptionsAllowedBeforeBreaking >= 2
}

// HasTimeout reports whether a QoS timeout applies.
func (o QoSOptions) HasTimeout() bool {
	return o.Timeout > 0
}

// HandlerOptions configures the outbound transport of a route.
type HandlerOptions struct {
	AcceptAnyCertificate    bool
	UseCookieContainer      bool
	AllowAutoRedirect       bool
	UseProxy                bool
	UseTracing              bool
	MaxConnectionsPerServer int
	// PooledConnectionLifetime bounds how long a pooled connection is
	// reused before it is recycled.
	PooledConnectionLifetime time.Duration
}

// DefaultHandlerOptions returns the options of a route that sets none.
func DefaultHandlerOptions() HandlerOptions {
	return HandlerOptions{
		UseProxy:                 true,
		PooledConnectionLifetime: DefaultPooledConnectionLifetime,
	}
}

// Handler decorates an outbound round tripper. Handlers see requests in
// registration order and responses in reverse order.
type Handler func(next http.RoundTripper) http.RoundTripper

// HandlerFactory creates a Handler for one invoker.
type HandlerFactory func() Handler

// HandlerLookup resolves a configured handler name.
type HandlerLookup func(name string) (HandlerFactory, bool)
