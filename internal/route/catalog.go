package route

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vyrodovalexey/routegw/internal/backend"
	"github.com/vyrodovalexey/routegw/internal/config"
	"github.com/vyrodovalexey/routegw/internal/router"
	"github.com/vyrodovalexey/routegw/internal/util"
)

// DiscoveryFunc returns a resolver for a discovery service name.
type DiscoveryFunc func(serviceName string) (backend.Resolver, error)

// BuildOptions supplies the collaborators Build needs.
type BuildOptions struct {
	// Handlers resolves delegating handler names. Required when any route
	// names a handler.
	Handlers HandlerLookup
	// Discovery resolves service names. Required when any route uses one.
	Discovery DiscoveryFunc
}

// Catalog is the immutable, ordered set of routes of one configuration.
type Catalog struct {
	routes []*Definition
	byKey  map[string]*Definition
	table  *router.Table[*Definition]
	config *config.GatewayConfig
}

// Build compiles every route of cfg. It fails on the first invalid route.
func Build(cfg *config.GatewayConfig, opts BuildOptions) (*Catalog, error) {
	if cfg == nil {
		return nil, fmt.Errorf("build catalog: %w", util.ErrInvalidInput)
	}

	global := &cfg.Spec.Global
	routes := make([]*Definition, 0, len(cfg.Spec.Routes))
	byKey := make(map[string]*Definition, len(cfg.Spec.Routes))

	for i := range cfg.Spec.Routes {
		def, err := buildDefinition(i, &cfg.Spec.Routes[i], global, opts)
		if err != nil {
			return nil, err
		}
		if _, dup := byKey[def.key]; dup {
			def.key = disambiguate(def.key, i)
		}
		byKey[def.key] = def
		routes = append(routes, def)
	}

	return &Catalog{
		routes: routes,
		byKey:  byKey,
		table:  router.NewTable(routes),
		config: cfg,
	}, nil
}

// Match selects the route for req.
func (c *Catalog) Match(req router.Request) (router.Match[*Definition], error) {
	return c.table.Match(req)
}

// Routes returns the routes in configuration order.
func (c *Catalog) Routes() []*Definition {
	return c.routes
}

// Len returns the number of routes.
func (c *Catalog) Len() int {
	return len(c.routes)
}

// Lookup returns the route with the given key.
func (c *Catalog) Lookup(key string) (*Definition, bool) {
	d, ok := c.byKey[key]
	return d, ok
}

// Config returns the configuration the catalog was built from.
func (c *Catalog) Config() *config.GatewayConfig {
	return c.config
}

func buildDefinition(
	index int,
	rc *config.RouteConfig,
	global *config.GlobalConfiguration,
	opts BuildOptions,
) (*Definition, error) {
	routeErr := func(err error) error {
		return util.NewConfigErrorWithCause(
			fmt.Sprintf("spec.routes[%d]", index),
			fmt.Sprintf("route %s: %v", rc.UpstreamPathTemplate, err),
			err,
		)
	}

	upstream, err := router.Compile(rc.UpstreamPathTemplate, rc.RouteIsCaseSensitive, rc.Priority)
	if err != nil {
		return nil, routeErr(err)
	}

	methods := make([]string, 0, len(rc.UpstreamHTTPMethod))
	for _, m := range rc.UpstreamHTTPMethod {
		methods = append(methods, strings.ToUpper(m))
	}

	scheme := rc.DownstreamScheme
	if scheme == "" {
		scheme = "http"
	}

	def := &Definition{
		key:                    identity(rc, methods),
		index:                  index,
		upstream:               upstream,
		methods:                methods,
		host:                   rc.UpstreamHost,
		DownstreamPathTemplate: rc.DownstreamPathTemplate,
		DownstreamScheme:       scheme,
		DownstreamMethod:       strings.ToUpper(rc.DownstreamHTTPMethod),
		ServiceName:            rc.ServiceName,
		LoadBalancer:           loadBalancerOptions(rc.LoadBalancerOptions, global.LoadBalancerOptions),
		QoS:                    qosOptions(rc.QoSOptions, global.QoSOptions),
		Handler:                handlerOptions(rc, global.HTTPHandlerOptions),
		Timeout:                routeTimeout(rc.Timeout, global.Timeout),
	}

	if rh := rc.UpstreamHeaderRouting; rh != nil && len(rh.Headers) > 0 {
		mode := router.HeaderModeAny
		if strings.EqualFold(rh.TriggerOn, config.TriggerOnAll) {
			mode = router.HeaderModeAll
		}
		def.headerRule = router.NewHeaderRule(mode, rh.Headers)
	}

	if err := def.resolveTarget(rc, opts.Discovery); err != nil {
		return nil, routeErr(err)
	}
	if err := def.resolveHandlers(rc.DelegatingHandlers, opts.Handlers); err != nil {
		return nil, routeErr(err)
	}

	return def, nil
}

func (d *Definition) resolveTarget(rc *config.RouteConfig, discovery DiscoveryFunc) error {
	if rc.ServiceName != "" {
		if discovery == nil {
			return fmt.Errorf("service %s: no service discovery provider configured", rc.ServiceName)
		}
		resolver, err := discovery(rc.ServiceName)
		if err != nil {
			return fmt.Errorf("service %s: %w", rc.ServiceName, err)
		}
		d.Resolver = resolver
		return nil
	}

	d.Hosts = make([]backend.ServiceInstance, 0, len(rc.DownstreamHostAndPorts))
	for _, hp := range rc.DownstreamHostAndPorts {
		d.Hosts = append(d.Hosts, backend.ServiceInstance{Host: hp.Host, Port: hp.Port})
	}
	if len(d.Hosts) == 0 {
		return errors.New("no downstream hosts")
	}
	d.Resolver = backend.NewStaticResolver(d.Hosts)
	return nil
}

func (d *Definition) resolveHandlers(names []string, lookup HandlerLookup) error {
	for _, name := range names {
		if lookup == nil {
			return fmt.Errorf("delegating handler %q: no handler registry", name)
		}
		factory, ok := lookup(name)
		if !ok {
			return fmt.Errorf("delegating handler %q is not registered", name)
		}
		d.Handlers = append(d.Handlers, factory)
		d.HandlerNames = append(d.HandlerNames, name)
	}
	return nil
}

func loadBalancerOptions(routeOpts, globalOpts *config.LoadBalancerOptions) backend.Options {
	o := routeOpts
	if o == nil {
		o = globalOpts
	}
	if o == nil {
		return backend.Options{}
	}
	return backend.Options{
		Type:   o.Type,
		Key:    o.Key,
		Expiry: time.Duration(o.Expiry) * time.Millisecond,
	}
}

func qosOptions(routeOpts, globalOpts *config.QoSOptions) QoSOptions {
	o := routeOpts
	if o == nil {
		o = globalOpts
	}
	if o == nil {
		return QoSOptions{Timeout: Unlimited}
	}

	timeout := Unlimited
	if o.TimeoutValue > 0 {
		timeout = time.Duration(o.TimeoutValue) * time.Millisecond
	}
	return QoSOptions{
		ExceptionsAllowedBeforeBreaking: o.ExceptionsAllowedBeforeBreaking,
		DurationOfBreak:                 time.Duration(o.DurationOfBreak) * time.Millisecond,
		Timeout:                         timeout,
	}
}

func handlerOptions(rc *config.RouteConfig, globalOpts *config.HTTPHandlerOptions) HandlerOptions {
	opts := DefaultHandlerOptions()

	o := rc.HTTPHandlerOptions
	if o == nil {
		o = globalOpts
	}
	if o != nil {
		opts.AllowAutoRedirect = o.AllowAutoRedirect
		opts.UseCookieContainer = o.UseCookieContainer
		opts.UseTracing = o.UseTracing
		opts.UseProxy = o.UseProxy
		opts.MaxConnectionsPerServer = o.MaxConnectionsPerServer
		if o.PooledConnectionLifetimeSeconds > 0 {
			opts.PooledConnectionLifetime = time.Duration(o.PooledConnectionLifetimeSeconds) * time.Second
		}
	}

	opts.AcceptAnyCertificate = rc.DangerousAcceptAnyServerCertificateValidator
	return opts
}

func routeTimeout(routeSeconds, globalSeconds int) time.Duration {
	if routeSeconds > 0 {
		return time.Duration(routeSeconds) * time.Second
	}
	if globalSeconds > 0 {
		return time.Duration(globalSeconds) * time.Second
	}
	return 0
}
