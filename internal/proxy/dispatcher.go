package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/routegw/internal/backend"
	"github.com/vyrodovalexey/routegw/internal/observability"
	"github.com/vyrodovalexey/routegw/internal/qos"
	"github.com/vyrodovalexey/routegw/internal/requester"
	"github.com/vyrodovalexey/routegw/internal/route"
	"github.com/vyrodovalexey/routegw/internal/router"
	"github.com/vyrodovalexey/routegw/internal/util"
)

// hopHeaders are headers that should not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Downstream outcome labels.
const (
	outcomeSuccess     = "success"
	outcomeTimeout     = "timeout"
	outcomeCircuitOpen = "circuit_open"
	outcomeCanceled    = "canceled"
	outcomeError       = "error"
)

// Dispatcher routes inbound requests to downstream services.
type Dispatcher struct {
	catalog   atomic.Pointer[route.Catalog]
	balancers *backend.Registry
	pipelines *qos.Cache
	invokers  *requester.Pool
	logger    observability.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
}

// Option is a functional option for configuring the dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger for the dispatcher.
func WithLogger(logger observability.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithTracer enables a server span per dispatched request.
func WithTracer(t *observability.Tracer) Option {
	return func(d *Dispatcher) {
		d.tracer = t
	}
}

// WithBalancers sets the load balancer registry.
func WithBalancers(r *backend.Registry) Option {
	return func(d *Dispatcher) {
		d.balancers = r
	}
}

// WithPipelines sets the resilience pipeline cache.
func WithPipelines(c *qos.Cache) Option {
	return func(d *Dispatcher) {
		d.pipelines = c
	}
}

// WithInvokers sets the outbound invoker pool.
func WithInvokers(p *requester.Pool) Option {
	return func(d *Dispatcher) {
		d.invokers = p
	}
}

// NewDispatcher creates a dispatcher serving catalog. Caches not supplied
// through options are created with the dispatcher's logger and metrics.
func NewDispatcher(catalog *route.Catalog, opts ...Option) (*Dispatcher, error) {
	if catalog == nil {
		return nil, ErrNilCatalog
	}

	d := &Dispatcher{
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.balancers == nil {
		d.balancers = backend.NewRegistry(
			backend.WithRegistryLogger(d.logger),
			backend.WithRegistryMetrics(d.metrics),
		)
	}
	if d.pipelines == nil {
		d.pipelines = qos.NewCache(qos.WithLogger(d.logger), qos.WithMetrics(d.metrics))
	}
	if d.invokers == nil {
		poolOpts := []requester.Option{
			requester.WithLogger(d.logger),
			requester.WithMetrics(d.metrics),
		}
		if d.tracer != nil {
			poolOpts = append(poolOpts, requester.WithTracer(d.tracer))
		}
		d.invokers = requester.NewPool(poolOpts...)
	}

	d.catalog.Store(catalog)
	return d, nil
}

// Catalog returns the catalog currently served.
func (d *Dispatcher) Catalog() *route.Catalog {
	return d.catalog.Load()
}

// Swap atomically replaces the catalog and drops every per-route balancer,
// pipeline and invoker built for the previous one.
func (d *Dispatcher) Swap(catalog *route.Catalog) error {
	if catalog == nil {
		return ErrNilCatalog
	}

	previous := d.catalog.Swap(catalog)

	d.balancers.Reset()
	d.pipelines.Reset()
	d.invokers.Reset()

	previousRoutes := 0
	if previous != nil {
		previousRoutes = previous.Len()
	}
	d.logger.Info("route catalog swapped",
		observability.Int("routes", catalog.Len()),
		observability.Int("previous_routes", previousRoutes),
	)
	return nil
}

// Close releases the balancers and pooled connections.
func (d *Dispatcher) Close() error {
	d.pipelines.Reset()
	d.invokers.Reset()
	return d.balancers.Close()
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	catalog := d.catalog.Load()
	global := &catalog.Config().Spec.Global

	ctx := r.Context()
	if util.RequestIDFromContext(ctx) == "" {
		if id := r.Header.Get(global.EffectiveRequestIDKey()); id != "" {
			ctx = util.ContextWithRequestID(ctx, id)
		}
	}

	match, err := catalog.Match(router.NewRequest(r))
	if err != nil {
		d.metrics.RecordRouteMatch(false)
		status := d.writeError(w, r.WithContext(ctx), NewDispatchError(OpMatch, "", "", "no route", err),
			global.EffectiveQoSExceededStatusCode())
		d.metrics.RecordRequest(r.Method, observability.UnmatchedRoute, status, time.Since(start))
		return
	}
	d.metrics.RecordRouteMatch(true)

	def := match.Route
	ctx = util.ContextWithRoute(ctx, def.Key())

	var span trace.Span
	if d.tracer != nil {
		ctx = observability.ExtractTraceContext(ctx, r.Header)
		ctx, span = d.tracer.StartSpan(ctx, "dispatch "+def.UpstreamTemplate().Original(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", def.UpstreamTemplate().Original()),
				attribute.String("routegw.route.key", def.Key()),
			),
		)
		defer span.End()
	}

	r = r.WithContext(ctx)
	status, err := d.dispatch(ctx, w, r, def, match.Placeholders)
	if err != nil {
		status = d.writeError(w, r, err, global.EffectiveQoSExceededStatusCode())
	}

	if span != nil {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	d.metrics.RecordRequest(r.Method, def.Key(), status, time.Since(start))
}

// dispatch leases an instance, sends the request through the route's
// pipeline and invoker, and copies the response to w. It returns the status
// written, or an error when nothing has been written yet.
func (d *Dispatcher) dispatch(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	def *route.Definition,
	ph router.Placeholders,
) (int, error) {
	key := def.Key()
	strategy := balancerName(def.LoadBalancer)

	lb, err := d.balancers.Get(key, def.Resolver, def.LoadBalancer)
	if err != nil {
		return 0, NewDispatchError(OpLease, key, "", "load balancer unavailable", err)
	}

	instance, err := lb.Lease(ctx, r)
	d.metrics.RecordLease(key, strategy, err)
	if err != nil {
		return 0, NewDispatchError(OpLease, key, "", "failed to lease a service instance", err)
	}
	defer lb.Release(instance)

	target, err := def.DownstreamURL(instance, ph, r.URL.RawQuery)
	if err != nil {
		return 0, NewDispatchError(OpBuildURL, key, instance.Address(), "invalid downstream URL", err)
	}

	out, err := outboundRequest(ctx, r, def, target)
	if err != nil {
		return 0, NewDispatchError(OpBuildURL, key, target.Host, "invalid outbound request", err)
	}

	invoker := d.invokers.Get(def)
	pipeline := d.pipelines.Get(def)

	sent := time.Now()
	resp, err := pipeline.Execute(ctx, func(ctx context.Context) (*http.Response, error) {
		return invoker.Send(ctx, out)
	})
	d.metrics.RecordDownstream(key, outcome(err), time.Since(sent))
	if err != nil {
		return 0, NewDispatchError(OpSend, key, target.Host, "downstream call failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	d.writeResponse(w, resp, key)
	return resp.StatusCode, nil
}

// outboundRequest builds the downstream request from the inbound one.
func outboundRequest(ctx context.Context, r *http.Request, def *route.Definition, target *url.URL) (*http.Request, error) {
	method := r.Method
	if def.DownstreamMethod != "" {
		method = strings.ToUpper(def.DownstreamMethod)
	}

	body := r.Body
	if r.ContentLength == 0 {
		body = http.NoBody
	}
	out, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, err
	}
	out.ContentLength = r.ContentLength

	out.Header = r.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	removeHopHeaders(out.Header)
	setForwardedHeaders(out, r)

	out.Host = target.Host
	return out, nil
}

// setForwardedHeaders records the inbound client, host and scheme.
func setForwardedHeaders(out, in *http.Request) {
	if clientIP, _, err := net.SplitHostPort(in.RemoteAddr); err == nil {
		if prior := in.Header.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
		out.Header.Set("X-Forwarded-For", clientIP)
	}

	if in.TLS != nil {
		out.Header.Set("X-Forwarded-Proto", "https")
	} else {
		out.Header.Set("X-Forwarded-Proto", "http")
	}

	out.Header.Set("X-Forwarded-Host", in.Host)
}

// removeHopHeaders strips hop-by-hop headers, including those named by
// the Connection header.
func removeHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// writeResponse copies the downstream status, headers and body to w.
func (d *Dispatcher) writeResponse(w http.ResponseWriter, resp *http.Response, key string) {
	header := w.Header()
	for name, values := range resp.Header {
		header[name] = append([]string(nil), values...)
	}
	removeHopHeaders(header)
	w.WriteHeader(resp.StatusCode)

	var dst io.Writer = w
	if flusher, ok := w.(http.Flusher); ok && streaming(resp) {
		dst = &flushWriter{w: w, flusher: flusher}
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		d.logger.Debug("response copy interrupted",
			observability.String("route", key),
			observability.Error(err),
		)
	}
}

// streaming reports whether resp should be flushed as it arrives.
func streaming(resp *http.Response) bool {
	if resp.ContentLength == -1 {
		return true
	}
	mediaType := resp.Header.Get("Content-Type")
	return strings.HasPrefix(mediaType, "text/event-stream")
}

type flushWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func (f *flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	f.flusher.Flush()
	return n, err
}

// errorResponse is the JSON body of a failed dispatch.
type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// writeError logs err and writes its client-facing rendering. It returns
// the status written.
func (d *Dispatcher) writeError(w http.ResponseWriter, r *http.Request, err error, circuitOpenStatus int) int {
	class := classify(err, circuitOpenStatus)
	requestID := util.RequestIDFromContext(r.Context())

	fields := []observability.Field{
		observability.String("method", r.Method),
		observability.String("path", r.URL.Path),
		observability.Int("status", class.status),
		observability.String("request_id", requestID),
		observability.Error(err),
	}
	switch {
	case class.status == http.StatusNotFound, class.status == StatusClientClosedRequest:
		d.logger.Debug("request not dispatched", fields...)
	case errors.Is(err, util.ErrCircuitOpen), errors.Is(err, util.ErrTimeout),
		errors.Is(err, util.ErrNoServicesAvailable):
		d.logger.Warn("request not dispatched", fields...)
	default:
		d.logger.Error("dispatch error", fields...)
	}

	body, _ := json.Marshal(errorResponse{
		Error:     errorText(class.status),
		Message:   class.message,
		RequestID: requestID,
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(class.status)
	_, _ = w.Write(body)
	return class.status
}

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, util.ErrTimeout):
		return outcomeTimeout
	case errors.Is(err, util.ErrCircuitOpen):
		return outcomeCircuitOpen
	case util.IsCanceled(err):
		return outcomeCanceled
	default:
		return outcomeError
	}
}

func balancerName(opts backend.Options) string {
	if opts.Type == "" {
		return backend.StrategyNoLoadBalancer
	}
	return opts.Type
}
