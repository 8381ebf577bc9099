package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UnmatchedRoute is the label value used for requests that do not match
// any configured route, keeping label cardinality bounded.
const UnmatchedRoute = "unmatched"

// Circuit breaker state gauge values.
const (
	CircuitStateClosed   = 0
	CircuitStateHalfOpen = 1
	CircuitStateOpen     = 2
)

// Metrics holds all Prometheus metrics for the gateway.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	routeMatches        *prometheus.CounterVec
	leasesTotal         *prometheus.CounterVec
	downstreamDuration  *prometheus.HistogramVec
	circuitBreakerState *prometheus.GaugeVec
	circuitTransitions  *prometheus.CounterVec
	timeoutsTotal       *prometheus.CounterVec
	pooledInvokers      prometheus.Gauge
	stickySessions      prometheus.Gauge
	configReloads       *prometheus.CounterVec
	buildInfo           *prometheus.GaugeVec
	startTime           prometheus.Gauge
	registry            *prometheus.Registry
}

// NewMetrics creates a new Metrics instance backed by its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "routegw"
	}

	durationBuckets := []float64{
		.001, .005, .01, .025, .05,
		.1, .25, .5, 1, 2.5, 5, 10,
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of dispatched HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end dispatch duration in seconds",
			Buckets:   durationBuckets,
		},
		[]string{"method", "route", "status"},
	)

	m.routeMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_matches_total",
			Help:      "Route matcher outcomes",
		},
		[]string{"result"},
	)

	m.leasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balancer_leases_total",
			Help:      "Load balancer lease outcomes",
		},
		[]string{"route", "balancer", "result"},
	)

	m.downstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "downstream_duration_seconds",
			Help:      "Downstream call duration in seconds",
			Buckets:   durationBuckets,
		},
		[]string{"route", "outcome"},
	)

	m.circuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help: "Circuit breaker state " +
				"(0=closed, 1=half-open, 2=open)",
		},
		[]string{"route"},
	)

	m.circuitTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Circuit breaker state transitions",
		},
		[]string{"route", "to"},
	)

	m.timeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeouts_total",
			Help:      "Downstream calls cut short by a timeout",
		},
		[]string{"route", "limit"},
	)

	m.pooledInvokers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pooled_invokers",
			Help:      "Number of cached per-route invokers",
		},
	)

	m.stickySessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sticky_sessions",
			Help:      "Number of live sticky sessions",
		},
	)

	m.configReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Route catalog reload attempts",
		},
		[]string{"result"},
	)

	m.buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information for the gateway",
		},
		[]string{"version", "commit", "build_time"},
	)

	m.startTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "start_time_seconds",
			Help:      "Start time of the gateway in unix seconds",
		},
	)

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.routeMatches,
		m.leasesTotal,
		m.downstreamDuration,
		m.circuitBreakerState,
		m.circuitTransitions,
		m.timeoutsTotal,
		m.pooledInvokers,
		m.stickySessions,
		m.configReloads,
		m.buildInfo,
		m.startTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m.startTime.SetToCurrentTime()

	return m
}

// RecordRequest records a completed dispatch. route must be the route key,
// never the raw request path.
func (m *Metrics) RecordRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = UnmatchedRoute
	}
	statusStr := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(method, route, statusStr).Inc()
	m.requestDuration.WithLabelValues(method, route, statusStr).Observe(duration.Seconds())
}

// RecordRouteMatch records whether the matcher found a route.
func (m *Metrics) RecordRouteMatch(matched bool) {
	if m == nil {
		return
	}
	result := "matched"
	if !matched {
		result = "not_found"
	}
	m.routeMatches.WithLabelValues(result).Inc()
}

// RecordLease records a load balancer lease outcome.
func (m *Metrics) RecordLease(route, balancer string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.leasesTotal.WithLabelValues(route, balancer, result).Inc()
}

// RecordDownstream records the duration of a downstream call.
func (m *Metrics) RecordDownstream(route, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.downstreamDuration.WithLabelValues(route, outcome).Observe(duration.Seconds())
}

// SetCircuitBreakerState records a circuit breaker transition.
func (m *Metrics) SetCircuitBreakerState(route string, state int, to string) {
	if m == nil {
		return
	}
	m.circuitBreakerState.WithLabelValues(route).Set(float64(state))
	m.circuitTransitions.WithLabelValues(route, to).Inc()
}

// RecordTimeout records a timeout and which limit fired.
func (m *Metrics) RecordTimeout(route, limit string) {
	if m == nil {
		return
	}
	m.timeoutsTotal.WithLabelValues(route, limit).Inc()
}

// SetPooledInvokers sets the number of cached invokers.
func (m *Metrics) SetPooledInvokers(n int) {
	if m == nil {
		return
	}
	m.pooledInvokers.Set(float64(n))
}

// AddStickySessions adjusts the live sticky session gauge by delta.
func (m *Metrics) AddStickySessions(delta int) {
	if m == nil {
		return
	}
	m.stickySessions.Add(float64(delta))
}

// RecordConfigReload records a catalog reload attempt.
func (m *Metrics) RecordConfigReload(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.configReloads.WithLabelValues(result).Inc()
}

// SetBuildInfo sets the build information metric.
func (m *Metrics) SetBuildInfo(version, commit, buildTime string) {
	if m == nil {
		return
	}
	m.buildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(
		m.registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	)
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
