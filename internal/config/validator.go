package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/vyrodovalexey/routegw/internal/util"
)

// placeholderPattern matches a {name} placeholder in a path template.
var placeholderPattern = regexp.MustCompile(`\{([^{}]*)\}`)

// httpTokenPattern matches a valid HTTP method token.
var httpTokenPattern = regexp.MustCompile("^[!#$%&'*+.^_`|~0-9A-Za-z-]+$")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Unwrap lets callers match validation failures with util.ErrConfigInvalid.
func (e ValidationErrors) Unwrap() error {
	return util.ErrConfigInvalid
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates gateway configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// ValidateConfig validates a gateway configuration.
func ValidateConfig(config *GatewayConfig) error {
	return NewValidator().Validate(config)
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *GatewayConfig) error {
	v.errors = make(ValidationErrors, 0)

	if config == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateRoot(config)
	v.validateListener(&config.Spec.Listener)
	v.validateGlobal(&config.Spec.Global)
	v.validateRoutes(config.Spec.Routes, config.Spec.Global.ServiceDiscovery != nil)
	v.validateObservability(config.Spec.Observability)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

// validateRoot validates root-level fields.
func (v *Validator) validateRoot(config *GatewayConfig) {
	if !strings.HasPrefix(config.APIVersion, "routegw.io/") {
		v.addError("apiVersion", "apiVersion must start with 'routegw.io/'")
	}
	if config.Kind != DefaultKind {
		v.addError("kind", "kind must be 'Gateway'")
	}
	if config.Metadata.Name == "" {
		v.addError("metadata.name", "name is required")
	}
}

// validateListener validates the inbound listener.
func (v *Validator) validateListener(listener *Listener) {
	if listener.Port < 1 || listener.Port > 65535 {
		v.addError("spec.listener.port", fmt.Sprintf("port must be between 1 and 65535, got %d", listener.Port))
	}
	if t := listener.Timeouts; t != nil {
		if t.ReadTimeout < 0 || t.ReadHeaderTimeout < 0 || t.WriteTimeout < 0 || t.IdleTimeout < 0 {
			v.addError("spec.listener.timeouts", "timeouts must not be negative")
		}
	}
}

// validateGlobal validates gateway-wide settings and route defaults.
func (v *Validator) validateGlobal(global *GlobalConfiguration) {
	const path = "spec.globalConfiguration"

	if code := global.QoSExceededStatusCode; code != 0 && (code < 400 || code > 599) {
		v.addError(path+".qosExceededStatusCode", "status code must be between 400 and 599")
	}
	if global.Timeout < 0 {
		v.addError(path+".timeout", "timeout must not be negative")
	}

	if sd := global.ServiceDiscovery; sd != nil {
		if !strings.EqualFold(sd.Type, "consul") {
			v.addError(path+".serviceDiscoveryProvider.type", fmt.Sprintf("unsupported provider %q, expected consul", sd.Type))
		}
		if sd.Port < 0 || sd.Port > 65535 {
			v.addError(path+".serviceDiscoveryProvider.port", "port must be between 0 and 65535")
		}
	}

	if store := global.SessionStore; store != nil {
		switch strings.ToLower(store.Type) {
		case "", "memory":
		case "redis":
			if store.Address == "" {
				v.addError(path+".sessionStore.address", "address is required for redis")
			}
		default:
			v.addError(path+".sessionStore.type", "type must be memory or redis")
		}
	}

	v.validateLoadBalancer(global.LoadBalancerOptions, path+".loadBalancerOptions")
	v.validateQoS(global.QoSOptions, path+".qosOptions")
	v.validateHandlerOptions(global.HTTPHandlerOptions, path+".httpHandlerOptions")
}

// validateRoutes validates route configurations.
func (v *Validator) validateRoutes(routes []RouteConfig, discovery bool) {
	seen := make(map[string]int)

	for i := range routes {
		route := &routes[i]
		path := fmt.Sprintf("spec.routes[%d]", i)

		v.validateUpstream(route, path)
		v.validateDownstream(route, path, discovery)
		v.validateLoadBalancer(route.LoadBalancerOptions, path+".loadBalancerOptions")
		v.validateQoS(route.QoSOptions, path+".qosOptions")
		v.validateHandlerOptions(route.HTTPHandlerOptions, path+".httpHandlerOptions")

		if route.Timeout < 0 {
			v.addError(path+".timeout", "timeout must not be negative")
		}
		for j, name := range route.DelegatingHandlers {
			if strings.TrimSpace(name) == "" {
				v.addError(fmt.Sprintf("%s.delegatingHandlers[%d]", path, j), "handler name is required")
			}
		}

		if route.UpstreamHeaderRouting == nil {
			key := routeSignature(route)
			if prev, ok := seen[key]; ok {
				v.addError(path, fmt.Sprintf("route duplicates spec.routes[%d]", prev))
			} else {
				seen[key] = i
			}
		}
	}
}

// validateUpstream validates the client-facing side of a route.
func (v *Validator) validateUpstream(route *RouteConfig, path string) {
	v.validateTemplate(route.UpstreamPathTemplate, path+".upstreamPathTemplate")

	for j, method := range route.UpstreamHTTPMethod {
		if !httpTokenPattern.MatchString(method) {
			v.addError(fmt.Sprintf("%s.upstreamHttpMethod[%d]", path, j), fmt.Sprintf("invalid method %q", method))
		}
	}

	if hr := route.UpstreamHeaderRouting; hr != nil {
		switch strings.ToLower(hr.TriggerOn) {
		case "", TriggerOnAny, TriggerOnAll:
		default:
			v.addError(path+".upstreamHeaderRouting.triggerOn", "triggerOn must be any or all")
		}
		if len(hr.Headers) == 0 {
			v.addError(path+".upstreamHeaderRouting.headers", "at least one header is required")
		}
	}
}

// validateDownstream validates the backend-facing side of a route.
func (v *Validator) validateDownstream(route *RouteConfig, path string, discovery bool) {
	v.validateTemplate(route.DownstreamPathTemplate, path+".downstreamPathTemplate")

	switch strings.ToLower(route.DownstreamScheme) {
	case "http", "https":
	default:
		v.addError(path+".downstreamScheme", "scheme must be http or https")
	}

	if route.DownstreamHTTPMethod != "" && !httpTokenPattern.MatchString(route.DownstreamHTTPMethod) {
		v.addError(path+".downstreamHttpMethod", fmt.Sprintf("invalid method %q", route.DownstreamHTTPMethod))
	}

	switch {
	case route.ServiceName != "" && len(route.DownstreamHostAndPorts) > 0:
		v.addError(path, "serviceName and downstreamHostAndPorts are mutually exclusive")
	case route.ServiceName != "" && !discovery:
		v.addError(path+".serviceName", "serviceName requires a serviceDiscoveryProvider")
	case route.ServiceName == "" && len(route.DownstreamHostAndPorts) == 0:
		v.addError(path, "route needs downstreamHostAndPorts or a serviceName")
	}

	for j, hp := range route.DownstreamHostAndPorts {
		hpPath := fmt.Sprintf("%s.downstreamHostAndPorts[%d]", path, j)
		if hp.Host == "" {
			v.addError(hpPath+".host", "host is required")
		}
		if hp.Port < 1 || hp.Port > 65535 {
			v.addError(hpPath+".port", fmt.Sprintf("port must be between 1 and 65535, got %d", hp.Port))
		}
	}
}

// validateTemplate checks that a path template is rooted, has balanced
// braces and no repeated or empty placeholder names.
func (v *Validator) validateTemplate(template, path string) {
	if template == "" {
		v.addError(path, "template is required")
		return
	}
	if !strings.HasPrefix(template, "/") {
		v.addError(path, "template must start with '/'")
	}
	if strings.Count(template, "{") != strings.Count(template, "}") {
		v.addError(path, "template has unbalanced braces")
		return
	}

	names := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		name := strings.ToLower(m[1])
		switch {
		case name == "":
			v.addError(path, "placeholder name is empty")
		case names[name]:
			v.addError(path, fmt.Sprintf("placeholder {%s} is used more than once", m[1]))
		default:
			names[name] = true
		}
	}
}

// validateLoadBalancer validates load balancer options.
func (v *Validator) validateLoadBalancer(opts *LoadBalancerOptions, path string) {
	if opts == nil {
		return
	}
	switch opts.Type {
	case "", LoadBalancerRoundRobin, LoadBalancerLeastConnection, LoadBalancerNoLoadBalancer:
	case LoadBalancerCookieStickySessions:
		if opts.Key == "" {
			v.addError(path+".key", "cookie key is required for CookieStickySessions")
		}
		if opts.Expiry <= 0 {
			v.addError(path+".expiry", "expiry must be positive for CookieStickySessions")
		}
	default:
		v.addError(path+".type", fmt.Sprintf("unknown load balancer %q", opts.Type))
	}
}

// validateQoS validates QoS options.
func (v *Validator) validateQoS(opts *QoSOptions, path string) {
	if opts == nil {
		return
	}
	if opts.ExceptionsAllowedBeforeBreaking < 0 {
		v.addError(path+".exceptionsAllowedBeforeBreaking", "must not be negative")
	}
	if opts.DurationOfBreak < 0 {
		v.addError(path+".durationOfBreak", "must not be negative")
	}
	if opts.TimeoutValue < 0 {
		v.addError(path+".timeoutValue", "must not be negative")
	}
}

// validateHandlerOptions validates outbound transport options.
func (v *Validator) validateHandlerOptions(opts *HTTPHandlerOptions, path string) {
	if opts == nil {
		return
	}
	if opts.MaxConnectionsPerServer < 0 {
		v.addError(path+".maxConnectionsPerServer", "must not be negative")
	}
	if opts.PooledConnectionLifetimeSeconds < 0 {
		v.addError(path+".pooledConnectionLifetimeSeconds", "must not be negative")
	}
}

// validateObservability validates observability settings.
func (v *Validator) validateObservability(obs *ObservabilityConfig) {
	if obs == nil {
		return
	}
	if obs.Tracing != nil && (obs.Tracing.SamplingRate < 0 || obs.Tracing.SamplingRate > 1) {
		v.addError("spec.observability.tracing.samplingRate", "samplingRate must be between 0 and 1")
	}
	if obs.Logging != nil {
		switch strings.ToLower(obs.Logging.Level) {
		case "", "debug", "info", "warn", "error":
		default:
			v.addError("spec.observability.logging.level", "level must be debug, info, warn, or error")
		}
	}
}

// routeSignature identifies routes that would always shadow each other.
func routeSignature(route *RouteConfig) string {
	methods := make([]string, 0, len(route.UpstreamHTTPMethod))
	for _, m := range route.UpstreamHTTPMethod {
		methods = append(methods, strings.ToUpper(m))
	}
	if len(methods) == 0 {
		methods = append(methods, "*")
	}
	sort.Strings(methods)

	template := route.UpstreamPathTemplate
	if !route.RouteIsCaseSensitive {
		template = strings.ToLower(template)
	}
	return strings.ToLower(route.UpstreamHost) + "|" + template + "|" + strings.Join(methods, ",")
}

// addError adds a validation error.
func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}
