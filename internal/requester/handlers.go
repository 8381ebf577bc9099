package requester

import (
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/vyrodovalexey/routegw/internal/config"
	"github.com/vyrodovalexey/routegw/internal/route"
	"github.com/vyrodovalexey/routegw/internal/util"
)

// Built-in handler names.
const (
	HandlerRequestID = "request-id"
	HandlerForwarded = "forwarded"
)

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip calls f.
func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// HandlerRegistry maps handler names to factories.
type HandlerRegistry struct {
	mu        sync.RWMutex
	factories map[string]route.HandlerFactory
}

// NewHandlerRegistry creates a registry holding the built-in handlers.
// requestIDHeader names the correlation header; empty selects the default.
func NewHandlerRegistry(requestIDHeader string) *HandlerRegistry {
	if requestIDHeader == "" {
		requestIDHeader = config.DefaultRequestIDKey
	}
	r := &HandlerRegistry{factories: make(map[string]route.HandlerFactory)}
	r.Register(HandlerRequestID, RequestIDHandler(requestIDHeader))
	r.Register(HandlerForwarded, ForwardedHandler)
	return r
}

// Register adds or replaces the factory for name.
func (r *HandlerRegistry) Register(name string, factory route.HandlerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Lookup returns the factory registered for name.
func (r *HandlerRegistry) Lookup(name string) (route.HandlerFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Names returns the registered names, sorted.
func (r *HandlerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequestIDHandler propagates the request id from the context into header
// unless the outbound request already carries one.
func RequestIDHandler(header string) route.HandlerFactory {
	return func() route.Handler {
		return func(next http.RoundTripper) http.RoundTripper {
			return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
				id := util.RequestIDFromContext(req.Context())
				if id == "" || req.Header.Get(header) != "" {
					return next.RoundTrip(req)
				}
				out := req.Clone(req.Context())
				out.Header.Set(header, id)
				return next.RoundTrip(out)
			})
		}
	}
}

// ForwardedHandler adds an RFC 7239 Forwarded header built from the
// X-Forwarded-* headers of the outbound request.
func ForwardedHandler() route.Handler {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			value := forwardedValue(req.Header)
			if value == "" {
				return next.RoundTrip(req)
			}
			out := req.Clone(req.Context())
			if prior := out.Header.Get("Forwarded"); prior != "" {
				value = prior + ", " + value
			}
			out.Header.Set("Forwarded", value)
			return next.RoundTrip(out)
		})
	}
}

func forwardedValue(h http.Header) string {
	var parts []string

	if xff := h.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		client := strings.TrimSpace(hops[len(hops)-1])
		if ip := net.ParseIP(client); ip != nil && ip.To4() == nil {
			client = `"[` + client + `]"`
		}
		parts = append(parts, "for="+client)
	}
	if host := h.Get("X-Forwarded-Host"); host != "" {
		parts = append(parts, "host="+quoteIfNeeded(host))
	}
	if proto := h.Get("X-Forwarded-Proto"); proto != "" {
		parts = append(parts, "proto="+proto)
	}

	return strings.Join(parts, ";")
}

func quoteIfNeeded(v string) string {
	if strings.ContainsAny(v, ":[]") {
		return `"` + v + `"`
	}
	return v
}
