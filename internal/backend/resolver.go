package backend

import (
	"context"
)

// Resolver yields the current instances for a route. Implementations must
// be safe for concurrent use and may block on I/O.
type Resolver interface {
	Instances(ctx context.Context) ([]ServiceInstance, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context) ([]ServiceInstance, error)

// Instances calls f.
func (f ResolverFunc) Instances(ctx context.Context) ([]ServiceInstance, error) {
	return f(ctx)
}

// StaticResolver returns a fixed instance list.
type StaticResolver struct {
	instances []ServiceInstance
}

// NewStaticResolver creates a resolver over a copy of instances.
func NewStaticResolver(instances []ServiceInstance) *StaticResolver {
	cp := make([]ServiceInstance, len(instances))
	copy(cp, instances)
	return &StaticResolver{instances: cp}
}

// Instances returns the configured list.
func (r *StaticResolver) Instances(ctx context.Context) ([]ServiceInstance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.instances, nil
}
