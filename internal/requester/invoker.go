package requester

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/vyrodovalexey/routegw/internal/observability"
	"github.com/vyrodovalexey/routegw/internal/route"
	"github.com/vyrodovalexey/routegw/internal/util"
)

// Invoker sends the requests of one route. It is safe for concurrent use.
type Invoker struct {
	route      string
	upstream   string
	downstream string

	client    *http.Client
	transport *http.Transport

	qosTimeout   time.Duration
	routeTimeout time.Duration

	acceptAnyCert bool
	warnOnce      sync.Once

	lifetime    time.Duration
	lastRecycle atomic.Int64

	logger  observability.Logger
	metrics *observability.Metrics
}

func newInvoker(def *route.Definition, p *Pool) *Invoker {
	transport := newTransport(p.transportConfig, def.Handler)

	var rt http.RoundTripper = transport
	if def.Handler.UseTracing && p.tracer != nil {
		rt = p.tracer.Transport(rt)
	}
	// Handler 0 is outermost: it sees the request first and the response
	// last.
	for i := len(def.Handlers) - 1; i >= 0; i-- {
		rt = def.Handlers[i]()(rt)
	}

	client := &http.Client{
		Transport: rt,
		Timeout:   0, // No timeout at client level, use context
	}
	if !def.Handler.AllowAutoRedirect {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	if def.Handler.UseCookieContainer {
		// cookiejar.New never returns an error.
		jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		client.Jar = jar
	}

	inv := &Invoker{
		route:         def.Key(),
		upstream:      def.UpstreamTemplate().Original(),
		downstream:    def.DownstreamPathTemplate,
		client:        client,
		transport:     transport,
		routeTimeout:  def.Timeout,
		acceptAnyCert: def.Handler.AcceptAnyCertificate,
		lifetime:      def.Handler.PooledConnectionLifetime,
		logger:        p.logger,
		metrics:       p.metrics,
	}
	if def.QoS.HasTimeout() {
		inv.qosTimeout = def.QoS.Timeout
	}
	inv.lastRecycle.Store(time.Now().UnixNano())

	return inv
}

// Route returns the key of the route the invoker serves.
func (i *Invoker) Route() string {
	return i.route
}

// Timeout returns the enforced timeout and which limit it comes from. A
// zero duration means no client-side timeout.
func (i *Invoker) Timeout() (time.Duration, string) {
	switch {
	case i.qosTimeout > 0 && (i.routeTimeout <= 0 || i.qosTimeout <= i.routeTimeout):
		return i.qosTimeout, util.TimeoutLimitQoS
	case i.routeTimeout > 0:
		return i.routeTimeout, util.TimeoutLimitRoute
	default:
		return 0, ""
	}
}

// Send performs req through the route's handler chain. Failures are
// classified as *util.TimeoutError when a timeout fired,
// util.ErrRequestCanceled when the caller went away, and
// *util.TransportError otherwise. The response body keeps the call's
// timeout context alive until it is closed.
func (i *Invoker) Send(ctx context.Context, req *http.Request) (*http.Response, error) {
	if i.acceptAnyCert {
		i.warnOnce.Do(func() {
			i.logger.Warn(fmt.Sprintf(
				"You have ignored all SSL warnings by using DangerousAcceptAnyServerCertificateValidator "+
					"for this DownstreamRoute, UpstreamPathTemplate: %s, DownstreamPathTemplate: %s",
				i.upstream, i.downstream))
		})
	}
	i.recycle()

	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout, limit := i.Timeout(); timeout > 0 {
		callCtx, cancel = context.WithTimeoutCause(ctx, timeout,
			util.NewTimeoutError(i.route, limit, timeout))
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}

	resp, err := i.client.Do(req.WithContext(callCtx))
	if err != nil {
		cancel()
		return nil, i.classify(ctx, callCtx, req, err)
	}

	resp.Body = util.CancelOnClose(resp.Body, cancel)
	return resp, nil
}

// classify maps a failed call to the gateway error taxonomy.
func (i *Invoker) classify(parent, callCtx context.Context, req *http.Request, err error) error {
	if parent.Err() != nil {
		// A timeout owned by an enclosing resilience pipeline.
		if te, ok := util.AsTimeout(context.Cause(parent)); ok {
			return te
		}
		return fmt.Errorf("%w: %w", util.ErrRequestCanceled, context.Cause(parent))
	}
	if te, ok := util.AsTimeout(context.Cause(callCtx)); ok {
		i.logger.Warn("downstream call timed out",
			observability.String("route", i.route),
			observability.String("limit", te.Limit),
			observability.Duration("timeout", te.Duration))
		i.metrics.RecordTimeout(i.route, te.Limit)
		return te
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", util.ErrRequestCanceled, err)
	}
	return util.NewTransportError(i.route, req.URL.Host, err)
}

// recycle closes idle connections once per pooled connection lifetime.
func (i *Invoker) recycle() {
	if i.lifetime <= 0 {
		return
	}
	now := time.Now().UnixNano()
	last := i.lastRecycle.Load()
	if time.Duration(now-last) < i.lifetime {
		return
	}
	if i.lastRecycle.CompareAndSwap(last, now) {
		i.transport.CloseIdleConnections()
	}
}

// Close releases the invoker's idle connections.
func (i *Invoker) Close() {
	i.transport.CloseIdleConnections()
}
