package config

import "time"

// Default values applied when a configuration omits them.
const (
	DefaultAPIVersion = "routegw.io/v1"
	DefaultKind       = "Gateway"

	DefaultPort              = 8080
	DefaultReadTimeout       = 30 * time.Second
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultWriteTimeout      = 60 * time.Second
	DefaultIdleTimeout       = 120 * time.Second

	DefaultRequestIDKey          = "X-Request-ID"
	DefaultQoSExceededStatusCode = 503
	DefaultSessionKeyPrefix      = "routegw:sticky:"
)

// Load balancer strategy names.
const (
	LoadBalancerRoundRobin           = "RoundRobin"
	LoadBalancerLeastConnection      = "LeastConnection"
	LoadBalancerNoLoadBalancer       = "NoLoadBalancer"
	LoadBalancerCookieStickySessions = "CookieStickySessions"
)

// Header routing trigger modes.
const (
	TriggerOnAny = "any"
	TriggerOnAll = "all"
)

// GatewayConfig is the root configuration document.
type GatewayConfig struct {
	APIVersion string      `yaml:"apiVersion" json:"apiVersion"`
	Kind       string      `yaml:"kind" json:"kind"`
	Metadata   Metadata    `yaml:"metadata" json:"metadata"`
	Spec       GatewaySpec `yaml:"spec" json:"spec"`
}

// Metadata identifies a gateway configuration.
type Metadata struct {
	Name        string            `yaml:"name" json:"name"`
	Labels      map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty" json:"annotations,omitempty"`
}

// GatewaySpec holds the listener, global defaults and the route list.
type GatewaySpec struct {
	Listener      Listener             `yaml:"listener" json:"listener"`
	Global        GlobalConfiguration  `yaml:"globalConfiguration" json:"globalConfiguration"`
	Routes        []RouteConfig        `yaml:"routes" json:"routes"`
	Observability *ObservabilityConfig `yaml:"observability,omitempty" json:"observability,omitempty"`
	Admin         *AdminConfig         `yaml:"admin,omitempty" json:"admin,omitempty"`
}

// GlobalConfiguration holds gateway-wide settings and per-route defaults.
type GlobalConfiguration struct {
	// RequestIDKey is the header carrying the request correlation id.
	RequestIDKey string `yaml:"requestIdKey,omitempty" json:"requestIdKey,omitempty"`

	// QoSExceededStatusCode is returned when a circuit is open.
	QoSExceededStatusCode int `yaml:"qosExceededStatusCode,omitempty" json:"qosExceededStatusCode,omitempty"`

	ServiceDiscovery    *ServiceDiscoveryConfig `yaml:"serviceDiscoveryProvider,omitempty" json:"serviceDiscoveryProvider,omitempty"`
	SessionStore        *SessionStoreConfig     `yaml:"sessionStore,omitempty" json:"sessionStore,omitempty"`
	LoadBalancerOptions *LoadBalancerOptions    `yaml:"loadBalancerOptions,omitempty" json:"loadBalancerOptions,omitempty"`
	QoSOptions          *QoSOptions             `yaml:"qosOptions,omitempty" json:"qosOptions,omitempty"`
	HTTPHandlerOptions  *HTTPHandlerOptions     `yaml:"httpHandlerOptions,omitempty" json:"httpHandlerOptions,omitempty"`

	// Timeout is the default route timeout in seconds.
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// ServiceDiscoveryConfig configures the discovery provider used by routes
// that name a service instead of static hosts.
type ServiceDiscoveryConfig struct {
	Type    string   `yaml:"type" json:"type"`
	Scheme  string   `yaml:"scheme,omitempty" json:"scheme,omitempty"`
	Host    string   `yaml:"host,omitempty" json:"host,omitempty"`
	Port    int      `yaml:"port,omitempty" json:"port,omitempty"`
	Token   string   `yaml:"token,omitempty" json:"token,omitempty"`
	Tag     string   `yaml:"tag,omitempty" json:"tag,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// SessionStoreConfig selects where sticky sessions live.
type SessionStoreConfig struct {
	// Type is "memory" (default) or "redis".
	Type      string `yaml:"type" json:"type"`
	Address   string `yaml:"address,omitempty" json:"address,omitempty"`
	Password  string `yaml:"password,omitempty" json:"password,omitempty"`
	DB        int    `yaml:"db,omitempty" json:"db,omitempty"`
	KeyPrefix string `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`
}

// RouteConfig is a single route definition as written in configuration.
type RouteConfig struct {
	UpstreamPathTemplate  string               `yaml:"upstreamPathTemplate" json:"upstreamPathTemplate"`
	UpstreamHTTPMethod    []string             `yaml:"upstreamHttpMethod,omitempty" json:"upstreamHttpMethod,omitempty"`
	UpstreamHost          string               `yaml:"upstreamHost,omitempty" json:"upstreamHost,omitempty"`
	UpstreamHeaderRouting *HeaderRoutingConfig `yaml:"upstreamHeaderRouting,omitempty" json:"upstreamHeaderRouting,omitempty"`
	RouteIsCaseSensitive  bool                 `yaml:"routeIsCaseSensitive,omitempty" json:"routeIsCaseSensitive,omitempty"`
	Priority              *int                 `yaml:"priority,omitempty" json:"priority,omitempty"`

	DownstreamPathTemplate string        `yaml:"downstreamPathTemplate" json:"downstreamPathTemplate"`
	DownstreamScheme       string        `yaml:"downstreamScheme,omitempty" json:"downstreamScheme,omitempty"`
	DownstreamHTTPMethod   string        `yaml:"downstreamHttpMethod,omitempty" json:"downstreamHttpMethod,omitempty"`
	DownstreamHostAndPorts []HostAndPort `yaml:"downstreamHostAndPorts,omitempty" json:"downstreamHostAndPorts,omitempty"`
	ServiceName            string        `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`

	LoadBalancerOptions *LoadBalancerOptions `yaml:"loadBalancerOptions,omitempty" json:"loadBalancerOptions,omitempty"`
	QoSOptions          *QoSOptions          `yaml:"qosOptions,omitempty" json:"qosOptions,omitempty"`
	HTTPHandlerOptions  *HTTPHandlerOptions  `yaml:"httpHandlerOptions,omitempty" json:"httpHandlerOptions,omitempty"`

	DangerousAcceptAnyServerCertificateValidator bool `yaml:"dangerousAcceptAnyServerCertificateValidator,omitempty" json:"dangerousAcceptAnyServerCertificateValidator,omitempty"`

	// Timeout is the route-level timeout in seconds.
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// DelegatingHandlers names registered outbound handlers in call order.
	DelegatingHandlers []string `yaml:"delegatingHandlers,omitempty" json:"delegatingHandlers,omitempty"`
}

// HostAndPort is a static downstream address.
type HostAndPort struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// HeaderRoutingConfig restricts a route to requests carrying given headers.
type HeaderRoutingConfig struct {
	// TriggerOn is "any" or "all".
	TriggerOn string              `yaml:"triggerOn,omitempty" json:"triggerOn,omitempty"`
	Headers   map[string][]string `yaml:"headers" json:"headers"`
}

// LoadBalancerOptions selects the balancing strategy.
type LoadBalancerOptions struct {
	Type string `yaml:"type,omitempty" json:"type,omitempty"`
	// Key is the sticky session cookie name.
	Key string `yaml:"key,omitempty" json:"key,omitempty"`
	// Expiry is the sticky session lifetime in milliseconds.
	Expiry int `yaml:"expiry,omitempty" json:"expiry,omitempty"`
}

// QoSOptions configures the circuit breaker and timeout of a route.
// All durations are in milliseconds.
type QoSOptions struct {
	ExceptionsAllowedBeforeBreaking int `yaml:"exceptionsAllowedBeforeBreaking,omitempty" json:"exceptionsAllowedBeforeBreaking,omitempty"`
	DurationOfBreak                 int `yaml:"durationOfBreak,omitempty" json:"durationOfBreak,omitempty"`
	TimeoutValue                    int `yaml:"timeoutValue,omitempty" json:"timeoutValue,omitempty"`
}

// HTTPHandlerOptions configures the outbound transport of a route.
type HTTPHandlerOptions struct {
	AllowAutoRedirect               bool `yaml:"allowAutoRedirect,omitempty" json:"allowAutoRedirect,omitempty"`
	UseCookieContainer              bool `yaml:"useCookieContainer,omitempty" json:"useCookieContainer,omitempty"`
	UseTracing                      bool `yaml:"useTracing,omitempty" json:"useTracing,omitempty"`
	UseProxy                        bool `yaml:"useProxy,omitempty" json:"useProxy,omitempty"`
	MaxConnectionsPerServer         int  `yaml:"maxConnectionsPerServer,omitempty" json:"maxConnectionsPerServer,omitempty"`
	PooledConnectionLifetimeSeconds int  `yaml:"pooledConnectionLifetimeSeconds,omitempty" json:"pooledConnectionLifetimeSeconds,omitempty"`
}

// DefaultConfig returns a configuration with a listener and no routes.
func DefaultConfig() *GatewayConfig {
	return &GatewayConfig{
		APIVersion: DefaultAPIVersion,
		Kind:       DefaultKind,
		Metadata:   Metadata{Name: "routegw"},
		Spec: GatewaySpec{
			Listener: Listener{Port: DefaultPort},
		},
	}
}

// EffectiveRequestIDKey returns the request id header name.
func (g *GlobalConfiguration) EffectiveRequestIDKey() string {
	if g == nil || g.RequestIDKey == "" {
		return DefaultRequestIDKey
	}
	return g.RequestIDKey
}

// EffectiveQoSExceededStatusCode returns the open-circuit status code.
func (g *GlobalConfiguration) EffectiveQoSExceededStatusCode() int {
	if g == nil || g.QoSExceededStatusCode == 0 {
		return DefaultQoSExceededStatusCode
	}
	return g.QoSExceededStatusCode
}
