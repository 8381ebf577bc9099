package backend

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vyrodovalexey/routegw/internal/observability"
	"github.com/vyrodovalexey/routegw/internal/util"
)

// Options selects and parameterizes a load-balancing strategy.
type Options struct {
	// Type is the strategy name. Empty selects NoLoadBalancer.
	Type string
	// Key is the sticky-session cookie name.
	Key string
	// Expiry is the sticky-session lifetime.
	Expiry time.Duration
}

// Constructor builds a balancer for one route.
type Constructor func(routeKey string, resolver Resolver, opts Options) LoadBalancer

// Registry keeps one balancer per route identity. Strategies are looked up
// by name in a constructor table.
type Registry struct {
	constructors map[string]Constructor
	balancers    sync.Map // route key -> LoadBalancer
	store        SessionStore
	logger       observability.Logger
	metrics      *observability.Metrics
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithSessionStore sets the store shared by sticky-session balancers.
func WithSessionStore(store SessionStore) RegistryOption {
	return func(r *Registry) {
		r.store = store
	}
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(logger observability.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithRegistryMetrics sets the metrics sink.
func WithRegistryMetrics(m *observability.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry creates a registry with the built-in strategies.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		constructors: make(map[string]Constructor),
		logger:       observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.store == nil {
		r.store = NewMemoryStore()
	}

	r.Register(StrategyRoundRobin, func(_ string, res Resolver, _ Options) LoadBalancer {
		return NewRoundRobin(res)
	})
	r.Register(StrategyLeastConnection, func(_ string, res Resolver, _ Options) LoadBalancer {
		return NewLeastConnection(res)
	})
	r.Register(StrategyNoLoadBalancer, func(_ string, res Resolver, _ Options) LoadBalancer {
		return NewNoLoadBalancer(res)
	})
	r.Register(StrategyCookieStickySessions, func(routeKey string, res Resolver, o Options) LoadBalancer {
		return NewCookieStickySessions(NewRoundRobin(res), o.Key, o.Expiry, r.store,
			WithStickyNamespace(routeKey),
			WithStickyLogger(r.logger),
			WithStickyMetrics(r.metrics),
		)
	})

	return r
}

// Register adds or replaces a strategy constructor.
func (r *Registry) Register(name string, c Constructor) {
	r.constructors[name] = c
}

// Strategies returns the registered strategy names, sorted.
func (r *Registry) Strategies() []string {
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the balancer for routeKey, creating it on first use.
func (r *Registry) Get(routeKey string, resolver Resolver, opts Options) (LoadBalancer, error) {
	if lb, ok := r.balancers.Load(routeKey); ok {
		return lb.(LoadBalancer), nil
	}

	strategy := opts.Type
	if strategy == "" {
		strategy = StrategyNoLoadBalancer
	}
	construct, ok := r.constructors[strategy]
	if !ok {
		return nil, fmt.Errorf("load balancer %q for route %s: %w", strategy, routeKey, util.ErrInvalidInput)
	}

	lb := construct(routeKey, resolver, opts)
	actual, loaded := r.balancers.LoadOrStore(routeKey, lb)
	if loaded {
		closeBalancer(lb)
	} else {
		r.logger.Debug("load balancer created",
			observability.String("route", routeKey),
			observability.String("type", strategy))
	}
	return actual.(LoadBalancer), nil
}

// Reset drops every balancer, stopping sticky-session timers.
func (r *Registry) Reset() {
	r.balancers.Range(func(key, value any) bool {
		r.balancers.Delete(key)
		closeBalancer(value.(LoadBalancer))
		return true
	})
}

// Close releases resources held by the registry and its balancers.
func (r *Registry) Close() error {
	r.Reset()
	if c, ok := r.store.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func closeBalancer(lb LoadBalancer) {
	if c, ok := lb.(interface{ Close() }); ok {
		c.Close()
	}
}
