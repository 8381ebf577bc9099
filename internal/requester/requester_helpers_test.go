package requester

import (
	"net"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/routegw/internal/config"
	"github.com/vyrodovalexey/routegw/internal/route"
)

func hostAndPort(t *testing.T, srv *httptest.Server) config.HostAndPort {
	t.Helper()

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return config.HostAndPort{Host: host, Port: port}
}

// buildRoutes builds a catalog from rcs, resolving handlers through reg.
func buildRoutes(t *testing.T, reg *HandlerRegistry, rcs ...config.RouteConfig) []*route.Definition {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Spec.Routes = rcs

	opts := route.BuildOptions{}
	if reg != nil {
		opts.Handlers = reg.Lookup
	}
	cat, err := route.Build(cfg, opts)
	require.NoError(t, err)
	return cat.Routes()
}

func routeTo(upstream string, hp config.HostAndPort) config.RouteConfig {
	return config.RouteConfig{
		UpstreamPathTemplate:   upstream,
		DownstreamPathTemplate: "/",
		DownstreamHostAndPorts: []config.HostAndPort{hp},
	}
}
