package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vyrodovalexey/routegw/internal/backend"
	"github.com/vyrodovalexey/routegw/internal/config"
	"github.com/vyrodovalexey/routegw/internal/gateway"
	"github.com/vyrodovalexey/routegw/internal/health"
	"github.com/vyrodovalexey/routegw/internal/observability"
	"github.com/vyrodovalexey/routegw/internal/proxy"
	"github.com/vyrodovalexey/routegw/internal/qos"
	"github.com/vyrodovalexey/routegw/internal/requester"
	"github.com/vyrodovalexey/routegw/internal/route"
	"github.com/vyrodovalexey/routegw/internal/router"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 30 * time.Second

// healthCheckTTL caches dependency probes between readiness requests.
const healthCheckTTL = 5 * time.Second

// Session store types.
const (
	sessionStoreMemory = "memory"
	sessionStoreRedis  = "redis"
)

// Service discovery provider types.
const discoveryConsul = "consul"

var errDiscoveryNotConfigured = errors.New("service discovery provider is not configured")

// application holds all application components.
type application struct {
	gateway    *gateway.Gateway
	dispatcher *proxy.Dispatcher
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	consul     *backend.ConsulProvider
	redis      *backend.RedisStore
	handlers   *requester.HandlerRegistry
}

// initApplication initializes all application components.
func initApplication(cfg *config.GatewayConfig, logger observability.Logger) *application {
	metrics := observability.NewMetrics(metricsNamespace(cfg))
	metrics.SetBuildInfo(version, gitCommit, buildTime)
	if err := router.RegisterMetrics(metrics.Registry()); err != nil {
		logger.Warn("failed to register router metrics", observability.Error(err))
	}
	tracer := initTracer(cfg, logger)

	app := &application{
		metrics:  metrics,
		tracer:   tracer,
		handlers: requester.NewHandlerRegistry(cfg.Spec.Global.EffectiveRequestIDKey()),
	}

	store, err := initSessionStore(context.Background(), cfg.Spec.Global.SessionStore, logger)
	if err != nil {
		fatalWithSync(logger, "failed to initialize session store", observability.Error(err))
		return nil // unreachable in production; allows test to continue
	}
	if rs, ok := store.(*backend.RedisStore); ok {
		app.redis = rs
	}

	app.consul, err = initDiscovery(cfg.Spec.Global.ServiceDiscovery, logger)
	if err != nil {
		fatalWithSync(logger, "failed to initialize service discovery", observability.Error(err))
		return nil // unreachable in production; allows test to continue
	}

	catalog, err := app.buildCatalog(cfg)
	if err != nil {
		fatalWithSync(logger, "failed to build routes", observability.Error(err))
		return nil // unreachable in production; allows test to continue
	}

	dispatcher, err := proxy.NewDispatcher(catalog,
		proxy.WithLogger(logger),
		proxy.WithMetrics(metrics),
		proxy.WithTracer(tracer),
		proxy.WithBalancers(backend.NewRegistry(
			backend.WithSessionStore(store),
			backend.WithRegistryLogger(logger),
			backend.WithRegistryMetrics(metrics),
		)),
		proxy.WithPipelines(qos.NewCache(
			qos.WithLogger(logger),
			qos.WithMetrics(metrics),
		)),
		proxy.WithInvokers(requester.NewPool(
			requester.WithLogger(logger),
			requester.WithMetrics(metrics),
			requester.WithTracer(tracer),
		)),
	)
	if err != nil {
		fatalWithSync(logger, "failed to create dispatcher", observability.Error(err))
		return nil // unreachable in production; allows test to continue
	}
	app.dispatcher = dispatcher

	gw, err := gateway.New(cfg, dispatcher,
		gateway.WithLogger(logger),
		gateway.WithMetrics(metrics),
		gateway.WithVersion(version),
		gateway.WithShutdownTimeout(shutdownTimeout),
		gateway.WithCatalogBuilder(app.buildCatalog),
		gateway.WithHealthChecks(app.healthChecks()...),
	)
	if err != nil {
		fatalWithSync(logger, "failed to create gateway", observability.Error(err))
		return nil // unreachable in production; allows test to continue
	}
	app.gateway = gw

	logger.Info("application initialized",
		observability.Int("routes", catalog.Len()),
		observability.Any("handlers", app.handlers.Names()),
	)

	return app
}

// initSessionStore creates the sticky session store selected by cfg.
func initSessionStore(
	ctx context.Context,
	cfg *config.SessionStoreConfig,
	logger observability.Logger,
) (backend.SessionStore, error) {
	if cfg == nil || cfg.Type == "" || strings.EqualFold(cfg.Type, sessionStoreMemory) {
		logger.Info("using in-memory sticky session store")
		return backend.NewMemoryStore(), nil
	}

	if !strings.EqualFold(cfg.Type, sessionStoreRedis) {
		return nil, fmt.Errorf("unsupported session store type %q", cfg.Type)
	}

	store, err := backend.NewRedisStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("using redis sticky session store",
		observability.String("address", cfg.Address),
		observability.Int("db", cfg.DB),
	)
	return store, nil
}

// initDiscovery creates the service discovery provider, or nil when none
// is configured.
func initDiscovery(cfg *config.ServiceDiscoveryConfig, logger observability.Logger) (*backend.ConsulProvider, error) {
	if cfg == nil {
		return nil, nil
	}
	if !strings.EqualFold(cfg.Type, discoveryConsul) {
		return nil, fmt.Errorf("unsupported service discovery provider %q", cfg.Type)
	}
	return backend.NewConsulProvider(cfg, logger)
}

// buildCatalog compiles cfg using the application's handler registry and
// discovery provider.
func (a *application) buildCatalog(cfg *config.GatewayConfig) (*route.Catalog, error) {
	return route.Build(cfg, route.BuildOptions{
		Handlers:  a.handlers.Lookup,
		Discovery: a.discover,
	})
}

func (a *application) discover(service string) (backend.Resolver, error) {
	if a.consul == nil {
		return nil, fmt.Errorf("service %q: %w", service, errDiscoveryNotConfigured)
	}
	return a.consul.Resolver(service), nil
}

// healthChecks returns readiness checks for the external dependencies.
func (a *application) healthChecks() []health.Check {
	var checks []health.Check
	if a.redis != nil {
		checks = append(checks, health.NewCachedCheck(health.PingCheck("session-store", a.redis), healthCheckTTL))
	}
	if a.consul != nil {
		checks = append(checks, health.NewCachedCheck(health.PingCheck("service-discovery", a.consul), healthCheckTTL))
	}
	return checks
}
