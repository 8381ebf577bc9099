package backend

import (
	"context"
	"net/http"
	"sync"

	"github.com/vyrodovalexey/routegw/internal/util"
)

// Strategy names accepted by Registry.
const (
	StrategyRoundRobin           = "RoundRobin"
	StrategyLeastConnection      = "LeastConnection"
	StrategyNoLoadBalancer       = "NoLoadBalancer"
	StrategyCookieStickySessions = "CookieStickySessions"
)

// LoadBalancer leases a downstream instance for a request.
type LoadBalancer interface {
	// Lease selects an instance. It fails with a
	// *util.ServicesUnavailableError when no instance is available.
	Lease(ctx context.Context, r *http.Request) (ServiceInstance, error)
	// Release returns an instance obtained from Lease.
	Release(instance ServiceInstance)
}

// instances fetches the current instances for a balancer, turning resolver
// failures and empty lists into *util.ServicesUnavailableError.
func instances(ctx context.Context, resolver Resolver, balancer string) ([]ServiceInstance, error) {
	services, err := resolver.Instances(ctx)
	if err != nil {
		return nil, util.NewServicesUnavailableErrorWithCause(balancer, err)
	}
	if len(services) == 0 {
		return nil, util.NewServicesUnavailableError(balancer)
	}
	return services, nil
}

// RoundRobin leases instances in rotating order.
type RoundRobin struct {
	resolver Resolver
	mu       sync.Mutex
	last     int
}

// NewRoundRobin creates a round-robin balancer.
func NewRoundRobin(resolver Resolver) *RoundRobin {
	return &RoundRobin{resolver: resolver}
}

// Lease returns the instance after the previously leased one. The instance
// list is fetched before the cursor lock is taken.
func (b *RoundRobin) Lease(ctx context.Context, _ *http.Request) (ServiceInstance, error) {
	services, err := instances(ctx, b.resolver, StrategyRoundRobin)
	if err != nil {
		return ServiceInstance{}, err
	}

	b.mu.Lock()
	idx := b.last % len(services)
	b.last = idx + 1
	b.mu.Unlock()

	return services[idx], nil
}

// Release is a no-op.
func (b *RoundRobin) Release(ServiceInstance) {}

// LeastConnection leases the instance with the fewest outstanding leases.
type LeastConnection struct {
	resolver Resolver
	mu       sync.Mutex
	leases   map[ServiceInstance]int
}

// NewLeastConnection creates a least-connection balancer.
func NewLeastConnection(resolver Resolver) *LeastConnection {
	return &LeastConnection{
		resolver: resolver,
		leases:   make(map[ServiceInstance]int),
	}
}

// Lease returns the least leased instance; ties go to the earliest listed.
func (b *LeastConnection) Lease(ctx context.Context, _ *http.Request) (ServiceInstance, error) {
	services, err := instances(ctx, b.resolver, StrategyLeastConnection)
	if err != nil {
		return ServiceInstance{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.prune(services)

	selected := services[0]
	for _, s := range services[1:] {
		if b.leases[s] < b.leases[selected] {
			selected = s
		}
	}
	b.leases[selected]++

	return selected, nil
}

// Release decrements the outstanding lease count of instance.
func (b *LeastConnection) Release(instance ServiceInstance) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n, ok := b.leases[instance]; ok && n > 0 {
		b.leases[instance] = n - 1
	}
}

// prune forgets instances no longer listed. Must be called with mu held.
func (b *LeastConnection) prune(services []ServiceInstance) {
	if len(b.leases) <= len(services) {
		return
	}
	current := make(map[ServiceInstance]struct{}, len(services))
	for _, s := range services {
		current[s] = struct{}{}
	}
	for s := range b.leases {
		if _, ok := current[s]; !ok {
			delete(b.leases, s)
		}
	}
}

// NoLoadBalancer always leases the first instance.
type NoLoadBalancer struct {
	resolver Resolver
}

// NewNoLoadBalancer creates a balancer that always picks the first instance.
func NewNoLoadBalancer(resolver Resolver) *NoLoadBalancer {
	return &NoLoadBalancer{resolver: resolver}
}

// Lease returns the first instance.
func (b *NoLoadBalancer) Lease(ctx context.Context, _ *http.Request) (ServiceInstance, error) {
	services, err := instances(ctx, b.resolver, StrategyNoLoadBalancer)
	if err != nil {
		return ServiceInstance{}, err
	}
	return services[0], nil
}

// Release is a no-op.
func (b *NoLoadBalancer) Release(ServiceInstance) {}
