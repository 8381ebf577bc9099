package proxy

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/routegw/internal/config"
	"github.com/vyrodovalexey/routegw/internal/route"
)

func hostAndPort(t *testing.T, addr string) config.HostAndPort {
	t.Helper()

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return config.HostAndPort{Host: host, Port: port}
}

func serverAddr(t *testing.T, srv *httptest.Server) config.HostAndPort {
	t.Helper()
	return hostAndPort(t, srv.Listener.Addr().String())
}

// closedAddr returns an address nothing listens on.
func closedAddr(t *testing.T) config.HostAndPort {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return hostAndPort(t, addr)
}

func newCatalog(t *testing.T, mutate func(*config.GatewayConfig), opts route.BuildOptions) *route.Catalog {
	t.Helper()

	cfg := config.DefaultConfig()
	mutate(cfg)
	cat, err := route.Build(cfg, opts)
	require.NoError(t, err)
	return cat
}

func catalogOf(t *testing.T, routes ...config.RouteConfig) *route.Catalog {
	t.Helper()
	return newCatalog(t, func(cfg *config.GatewayConfig) {
		cfg.Spec.Routes = routes
	}, route.BuildOptions{})
}

func newTestDispatcher(t *testing.T, cat *route.Catalog, opts ...Option) *Dispatcher {
	t.Helper()

	d, err := NewDispatcher(cat, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func serve(d http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)
	return rec
}

func get(d http.Handler, target string) *httptest.ResponseRecorder {
	return serve(d, httptest.NewRequest(http.MethodGet, target, nil))
}

// named answers every request with its name.
func named(name string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = io.WriteString(w, name)
	}))
}
