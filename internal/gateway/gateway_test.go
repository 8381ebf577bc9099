package gateway

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/routegw/internal/config"
	"github.com/vyrodovalexey/routegw/internal/health"
	"github.com/vyrodovalexey/routegw/internal/observability"
	"github.com/vyrodovalexey/routegw/internal/proxy"
	"github.com/vyrodovalexey/routegw/internal/route"
)

// freePort returns a TCP port nothing listens on.
func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// downstream answers every request with its name and the request path.
func downstream(t *testing.T, name string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, name+" "+r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func forwardTo(t *testing.T, srv *httptest.Server, upstream, downstreamPath string) config.RouteConfig {
	t.Helper()

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return config.RouteConfig{
		UpstreamPathTemplate:   upstream,
		DownstreamPathTemplate: downstreamPath,
		DownstreamScheme:       "http",
		DownstreamHostAndPorts: []config.HostAndPort{{Host: host, Port: port}},
	}
}

func testConfig(t *testing.T, routes ...config.RouteConfig) *config.GatewayConfig {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Spec.Listener = config.Listener{Bind: "127.0.0.1", Port: freePort(t)}
	cfg.Spec.Routes = routes
	return cfg
}

func newTestGateway(t *testing.T, cfg *config.GatewayConfig, opts ...Option) *Gateway {
	t.Helper()

	catalog, err := route.Build(cfg, route.BuildOptions{})
	require.NoError(t, err)
	dispatcher, err := proxy.NewDispatcher(catalog)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dispatcher.Close() })

	gw, err := New(cfg, dispatcher, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if gw.IsRunning() {
			_ = gw.Stop(context.Background())
		}
	})
	return gw
}

func do(h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, body))
	return rec
}

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state    State
		expected string
	}{
		{StateStopped, "stopped"},
		{StateStarting, "starting"},
		{StateRunning, "running"},
		{StateStopping, "stopping"},
		{State(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	catalog, err := route.Build(cfg, route.BuildOptions{})
	require.NoError(t, err)
	dispatcher, err := proxy.NewDispatcher(catalog)
	require.NoError(t, err)
	defer func() { _ = dispatcher.Close() }()

	t.Run("nil config", func(t *testing.T) {
		t.Parallel()
		_, err := New(nil, dispatcher)
		assert.ErrorIs(t, err, ErrNilConfig)
	})

	t.Run("nil dispatcher", func(t *testing.T) {
		t.Parallel()
		_, err := New(cfg, nil)
		assert.ErrorIs(t, err, ErrNilDispatcher)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		gw, err := New(cfg, dispatcher)
		require.NoError(t, err)
		assert.Equal(t, StateStopped, gw.State())
		assert.False(t, gw.IsRunning())
		assert.Equal(t, DefaultShutdownTimeout, gw.shutdownTimeout)
		assert.Zero(t, gw.Uptime())
		assert.Nil(t, gw.Addr())
		assert.Same(t, cfg, gw.Config())
		assert.NotNil(t, gw.Engine())
	})

	t.Run("options", func(t *testing.T) {
		t.Parallel()
		gw, err := New(cfg, dispatcher,
			WithLogger(observability.NopLogger()),
			WithShutdownTimeout(time.Second),
			WithVersion("1.2.3"),
		)
		require.NoError(t, err)
		assert.Equal(t, time.Second, gw.shutdownTimeout)
		assert.Equal(t, "1.2.3", gw.version)
	})
}

func TestGateway_StartStop(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, testConfig(t))
	ctx := context.Background()

	require.NoError(t, gw.Start(ctx))
	assert.True(t, gw.IsRunning())
	require.NotNil(t, gw.Addr())
	assert.ErrorIs(t, gw.Start(ctx), ErrGatewayNotStopped)

	resp, err := http.Get("http://" + gw.Addr().String() + PathHealth)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Positive(t, gw.Uptime())

	require.NoError(t, gw.Stop(ctx))
	assert.Equal(t, StateStopped, gw.State())
	assert.ErrorIs(t, gw.Stop(ctx), ErrGatewayNotRunning)
}

func TestGateway_StartPortInUse(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig(t)
	cfg.Spec.Listener.Port = ln.Addr().(*net.TCPAddr).Port
	gw := newTestGateway(t, cfg)

	err = gw.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateStopped, gw.State())
}

func TestGateway_DispatchesUnmatchedPaths(t *testing.T) {
	t.Parallel()

	srv := downstream(t, "users")
	gw := newTestGateway(t, testConfig(t, forwardTo(t, srv, "/api/{everything}", "/{everything}")))

	rec := do(gw.Engine(), http.MethodGet, "/api/users/42", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "users /users/42", rec.Body.String())

	rec = do(gw.Engine(), http.MethodGet, "/nothing/here", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no matching route")
}

func TestGateway_RequestID(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Spec.Global.RequestIDKey = "X-Correlation-ID"
	gw := newTestGateway(t, cfg)

	req := httptest.NewRequest(http.MethodGet, PathHealth, nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec := httptest.NewRecorder()
	gw.Engine().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Correlation-ID"))

	rec = do(gw.Engine(), http.MethodGet, PathHealth, nil)
	assert.Len(t, rec.Header().Get("X-Correlation-ID"), 36)
}

func TestGateway_Recovery(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, testConfig(t))
	gw.Engine().GET("/panic", func(*gin.Context) {
		panic("boom")
	})

	rec := do(gw.Engine(), http.MethodGet, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestGateway_Readiness(t *testing.T) {
	t.Parallel()

	failing := errors.New("redis down")
	gw := newTestGateway(t, testConfig(t))

	rec := do(gw.Engine(), http.MethodGet, PathReady, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "gateway is stopped")

	require.NoError(t, gw.Start(context.Background()))
	rec = do(gw.Engine(), http.MethodGet, PathReady, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	withCheck := newTestGateway(t, testConfig(t), WithHealthChecks(
		health.NewCheck("session-store", func(context.Context) error { return failing }),
	))
	require.NoError(t, withCheck.Start(context.Background()))
	rec = do(withCheck.Engine(), http.MethodGet, PathReady, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis down")
}

func TestGateway_Liveness(t *testing.T) {
	t.Parallel()

	srv := downstream(t, "a")
	gw := newTestGateway(t, testConfig(t, forwardTo(t, srv, "/a", "/a")), WithVersion("v9"))

	rec := do(gw.Engine(), http.MethodGet, PathHealth, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"version":"v9"`)
	assert.Contains(t, body, `"routes":1`)
	assert.Contains(t, body, `"state":"stopped"`)
}

func TestGateway_Metrics(t *testing.T) {
	t.Parallel()

	metrics := observability.NewMetrics("gwtest")
	cfg := testConfig(t)
	cfg.Spec.Observability = &config.ObservabilityConfig{
		Metrics: &config.MetricsConfig{Enabled: true},
	}
	gw := newTestGateway(t, cfg, WithMetrics(metrics))

	require.NoError(t, gw.Reload(testConfig(t)))

	rec := do(gw.Engine(), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gwtest_config_reloads_total")

	count, err := testutil.GatherAndCount(metrics.Registry(), "gwtest_config_reloads_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGateway_Reload(t *testing.T) {
	t.Parallel()

	first := downstream(t, "first")
	second := downstream(t, "second")
	gw := newTestGateway(t, testConfig(t, forwardTo(t, first, "/svc", "/one")))

	rec := do(gw.Engine(), http.MethodGet, "/svc", nil)
	assert.Equal(t, "first /one", rec.Body.String())

	t.Run("nil config", func(t *testing.T) {
		assert.ErrorIs(t, gw.Reload(nil), ErrNilConfig)
	})

	t.Run("invalid config keeps catalog", func(t *testing.T) {
		bad := testConfig(t, forwardTo(t, second, "/svc", "/two"))
		bad.Metadata.Name = ""
		err := gw.Reload(bad)
		assert.ErrorIs(t, err, ErrInvalidConfig)

		rec := do(gw.Engine(), http.MethodGet, "/svc", nil)
		assert.Equal(t, "first /one", rec.Body.String())
	})

	t.Run("swaps catalog", func(t *testing.T) {
		next := testConfig(t, forwardTo(t, second, "/svc", "/two"))
		require.NoError(t, gw.Reload(next))
		assert.Same(t, next, gw.Config())

		rec := do(gw.Engine(), http.MethodGet, "/svc", nil)
		assert.Equal(t, "second /two", rec.Body.String())
	})
}

func TestGateway_ReloadBuildError(t *testing.T) {
	t.Parallel()

	buildErr := errors.New("unknown handler")
	cfg := testConfig(t)
	gw := newTestGateway(t, cfg, WithCatalogBuilder(func(*config.GatewayConfig) (*route.Catalog, error) {
		return nil, buildErr
	}))

	err := gw.Reload(testConfig(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, buildErr)
	assert.Same(t, cfg, gw.Config())
}
