package qos

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/vyrodovalexey/routegw/internal/observability"
	"github.com/vyrodovalexey/routegw/internal/route"
)

// Cache holds one Pipeline per route key. Lookups of a built pipeline do
// not lock; concurrent first lookups of a key share a single build.
type Cache struct {
	pipelines sync.Map // route key -> *Pipeline
	group     singleflight.Group
	logger    observability.Logger
	metrics   *observability.Metrics
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger handed to pipelines.
func WithLogger(logger observability.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics sink handed to pipelines.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// NewCache creates an empty cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the pipeline for def, building it on first use. It returns
// nil when def has QoS disabled.
func (c *Cache) Get(def *route.Definition) *Pipeline {
	if !def.QoS.Enabled() {
		return nil
	}

	key := def.Key()
	if p, ok := c.pipelines.Load(key); ok {
		return p.(*Pipeline)
	}

	v, _, _ := c.group.Do(key, func() (any, error) {
		if p, ok := c.pipelines.Load(key); ok {
			return p, nil
		}
		p := newPipeline(def, c.logger, c.metrics)
		c.pipelines.Store(key, p)
		c.logger.Debug("resilience pipeline built",
			observability.String("route", key),
			observability.Bool("breaker", p.HasBreaker()),
			observability.Duration("timeout", p.Timeout()))
		return p, nil
	})
	return v.(*Pipeline)
}

// Len returns the number of cached pipelines.
func (c *Cache) Len() int {
	n := 0
	c.pipelines.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Reset drops every pipeline.
func (c *Cache) Reset() {
	c.pipelines.Range(func(key, _ any) bool {
		c.pipelines.Delete(key)
		return true
	})
}
