package gateway

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/routegw/internal/config"
	"github.com/vyrodovalexey/routegw/internal/health"
	"github.com/vyrodovalexey/routegw/internal/observability"
	"github.com/vyrodovalexey/routegw/internal/proxy"
	"github.com/vyrodovalexey/routegw/internal/route"
)

// State represents the gateway state.
type State int32

const (
	// StateStopped indicates the gateway is stopped.
	StateStopped State = iota
	// StateStarting indicates the gateway is starting.
	StateStarting
	// StateRunning indicates the gateway is running.
	StateRunning
	// StateStopping indicates the gateway is stopping.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// DefaultShutdownTimeout bounds a graceful stop.
const DefaultShutdownTimeout = 30 * time.Second

var ginMode sync.Once

// CatalogBuilder compiles a configuration into a route catalog.
type CatalogBuilder func(cfg *config.GatewayConfig) (*route.Catalog, error)

// Gateway is the inbound HTTP server in front of the dispatcher.
type Gateway struct {
	config     *config.GatewayConfig
	admin      config.AdminConfig
	dispatcher *proxy.Dispatcher
	build      CatalogBuilder
	logger     observability.Logger
	metrics    *observability.Metrics
	version    string
	engine     *gin.Engine
	health     *health.Handler
	checks     []health.Check
	listener   *Listener
	state      atomic.Int32
	startTime  time.Time
	mu         sync.RWMutex

	// Shutdown
	shutdownTimeout time.Duration
}

// Option is a functional option for configuring the gateway.
type Option func(*Gateway)

// WithLogger sets the logger for the gateway.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithMetrics sets the metrics served at the configured metrics path.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithShutdownTimeout sets the shutdown timeout.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		g.shutdownTimeout = timeout
	}
}

// WithCatalogBuilder sets how reloaded configurations are compiled.
func WithCatalogBuilder(build CatalogBuilder) Option {
	return func(g *Gateway) {
		g.build = build
	}
}

// WithVersion sets the version reported by the health endpoints.
func WithVersion(version string) Option {
	return func(g *Gateway) {
		g.version = version
	}
}

// WithHealthChecks adds readiness checks.
func WithHealthChecks(checks ...health.Check) Option {
	return func(g *Gateway) {
		g.checks = append(g.checks, checks...)
	}
}

// New creates a gateway serving cfg through dispatcher.
func New(cfg *config.GatewayConfig, dispatcher *proxy.Dispatcher, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if dispatcher == nil {
		return nil, ErrNilDispatcher
	}

	g := &Gateway{
		config:          cfg,
		admin:           adminSettings(cfg),
		dispatcher:      dispatcher,
		logger:          observability.NopLogger(),
		shutdownTimeout: DefaultShutdownTimeout,
		build: func(cfg *config.GatewayConfig) (*route.Catalog, error) {
			return route.Build(cfg, route.BuildOptions{})
		},
	}

	for _, opt := range opts {
		opt(g)
	}

	g.state.Store(int32(StateStopped))
	g.health = health.NewHandler(
		health.WithLogger(g.logger),
		health.WithVersion(g.version),
		health.WithDetails(g.healthDetails),
	)
	g.health.AddCheck(health.NewCheck("listener", g.listenerCheck))
	for _, c := range g.checks {
		g.health.AddCheck(c)
	}

	ginMode.Do(func() { gin.SetMode(gin.ReleaseMode) })
	g.engine = gin.New()
	g.engine.RedirectTrailingSlash = false
	g.engine.RedirectFixedPath = false
	g.setupRoutes()

	return g, nil
}

// Start binds the listener and begins serving.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return ErrGatewayNotStopped
	}

	cfg := g.Config()
	g.logger.Info("starting gateway",
		observability.String("name", cfg.Metadata.Name),
	)

	listener := NewListener(cfg.Spec.Listener, g.engine, WithListenerLogger(g.logger))
	if err := listener.Start(ctx); err != nil {
		g.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to start listener: %w", err)
	}

	g.mu.Lock()
	g.listener = listener
	g.startTime = time.Now()
	g.mu.Unlock()
	g.state.Store(int32(StateRunning))

	g.logger.Info("gateway started",
		observability.String("name", cfg.Metadata.Name),
		observability.String("address", listener.Addr().String()),
		observability.Int("routes", g.dispatcher.Catalog().Len()),
	)

	return nil
}

// Stop stops the gateway gracefully.
func (g *Gateway) Stop(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return ErrGatewayNotRunning
	}

	g.logger.Info("stopping gateway",
		observability.String("name", g.Config().Metadata.Name),
	)

	// Create timeout context if not already set
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.shutdownTimeout)
		defer cancel()
	}

	g.mu.RLock()
	listener := g.listener
	g.mu.RUnlock()

	var err error
	if listener != nil {
		err = listener.Stop(ctx)
	}

	g.state.Store(int32(StateStopped))

	g.logger.Info("gateway stopped",
		observability.String("name", g.Config().Metadata.Name),
	)

	return err
}

// Reload validates cfg, builds its catalog and swaps it into the
// dispatcher. On failure the running configuration stays in place.
func (g *Gateway) Reload(cfg *config.GatewayConfig) error {
	if cfg == nil {
		return ErrNilConfig
	}

	g.logger.Info("reloading gateway configuration",
		observability.String("name", cfg.Metadata.Name),
	)

	if err := config.ValidateConfig(cfg); err != nil {
		g.metrics.RecordConfigReload(err)
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	catalog, err := g.build(cfg)
	if err != nil {
		g.metrics.RecordConfigReload(err)
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.dispatcher.Swap(catalog); err != nil {
		g.metrics.RecordConfigReload(err)
		return err
	}
	if adminSettings(cfg) != g.admin {
		g.logger.Warn("admin API changes take effect after restart")
	}
	if cfg.Spec.Listener.Address() != g.config.Spec.Listener.Address() {
		g.logger.Warn("listener changes take effect after restart",
			observability.String("active", g.config.Spec.Listener.Address()),
			observability.String("configured", cfg.Spec.Listener.Address()),
		)
	}
	g.config = cfg
	g.metrics.RecordConfigReload(nil)

	g.logger.Info("gateway configuration reloaded",
		observability.String("name", cfg.Metadata.Name),
		observability.Int("routes", catalog.Len()),
	)

	return nil
}

// State returns the current gateway state.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// IsRunning returns true if the gateway is running.
func (g *Gateway) IsRunning() bool {
	return g.State() == StateRunning
}

// Uptime returns the gateway uptime.
func (g *Gateway) Uptime() time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.startTime.IsZero() {
		return 0
	}
	return time.Since(g.startTime)
}

// Config returns the current configuration.
func (g *Gateway) Config() *config.GatewayConfig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.config
}

// Addr returns the address the listener is bound to, or nil before Start.
func (g *Gateway) Addr() net.Addr {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

// Engine returns the gin engine.
func (g *Gateway) Engine() *gin.Engine {
	return g.engine
}

// setupRoutes sets up the gin routes.
func (g *Gateway) setupRoutes() {
	g.engine.Use(
		recovery(g.logger),
		requestID(func() string { return g.Config().Spec.Global.EffectiveRequestIDKey() }),
		accessLog(g.logger),
	)

	g.engine.GET(PathHealth, g.health.LivenessHandler())
	g.engine.GET(PathReady, g.health.ReadinessHandler())

	if g.admin.Enabled {
		if g.admin.Token == "" {
			g.logger.Warn("admin API is enabled without a token")
		}
		admin := g.engine.Group(PathAdmin, adminAuth(g.admin.Token))
		admin.GET("/configuration", g.getConfiguration)
		admin.POST("/configuration", g.postConfiguration)
	}

	if path := g.config.Spec.Observability.MetricsPath(); path != "" && g.metrics != nil {
		g.engine.GET(path, gin.WrapH(g.metrics.Handler()))
	}

	g.engine.NoRoute(gin.WrapH(g.dispatcher))
	g.engine.NoMethod(gin.WrapH(g.dispatcher))
}

func (g *Gateway) healthDetails() map[string]any {
	return map[string]any{
		"state":  g.State().String(),
		"routes": g.dispatcher.Catalog().Len(),
	}
}

func (g *Gateway) listenerCheck(context.Context) error {
	if state := g.State(); state != StateRunning {
		return fmt.Errorf("gateway is %s", state)
	}
	return nil
}
