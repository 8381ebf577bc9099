package requester

import (
	"sync"
	"sync/atomic"

	"github.com/vyrodovalexey/routegw/internal/observability"
	"github.com/vyrodovalexey/routegw/internal/route"
)

// Pool keeps one Invoker per route identity. Routes never share an
// invoker, even when they target the same downstream.
type Pool struct {
	invokers sync.Map // route key -> *Invoker
	count    atomic.Int64

	transportConfig TransportConfig
	tracer          *observability.Tracer
	logger          observability.Logger
	metrics         *observability.Metrics
}

// Option configures a Pool.
type Option func(*Pool)

// WithTransportConfig overrides the default transport settings.
func WithTransportConfig(cfg TransportConfig) Option {
	return func(p *Pool) {
		p.transportConfig = cfg
	}
}

// WithTracer enables client spans for routes that ask for tracing.
func WithTracer(t *observability.Tracer) Option {
	return func(p *Pool) {
		p.tracer = t
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pool) {
		p.metrics = m
	}
}

// NewPool creates an empty pool.
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		transportConfig: DefaultTransportConfig(),
		logger:          observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get returns the invoker for def, building it on first use. When two
// callers race to build, one invoker wins and the other is closed.
func (p *Pool) Get(def *route.Definition) *Invoker {
	key := def.Key()
	if inv, ok := p.invokers.Load(key); ok {
		return inv.(*Invoker)
	}

	inv := newInvoker(def, p)
	actual, loaded := p.invokers.LoadOrStore(key, inv)
	if loaded {
		inv.Close()
		return actual.(*Invoker)
	}

	p.metrics.SetPooledInvokers(int(p.count.Add(1)))
	p.logger.Debug("invoker created",
		observability.String("route", key),
		observability.Int("handlers", len(def.Handlers)))
	return inv
}

// Len returns the number of pooled invokers.
func (p *Pool) Len() int {
	return int(p.count.Load())
}

// Reset drops every invoker and closes its idle connections.
func (p *Pool) Reset() {
	p.invokers.Range(func(key, value any) bool {
		if _, ok := p.invokers.LoadAndDelete(key); ok {
			value.(*Invoker).Close()
			p.count.Add(-1)
		}
		return true
	})
	p.metrics.SetPooledInvokers(int(p.count.Load()))
}
