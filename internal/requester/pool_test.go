package requester

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/routegw/internal/config"
	"github.com/vyrodovalexey/routegw/internal/observability"
)

func TestPool_SameRouteSameInvoker(t *testing.T) {
	t.Parallel()

	hp := config.HostAndPort{Host: "localhost", Port: 5001}
	defs := buildRoutes(t, nil, routeTo("/a", hp))
	pool := NewPool()

	const workers = 32
	got := make([]*Invoker, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = pool.Get(defs[0])
		}(i)
	}
	wg.Wait()

	for _, inv := range got {
		assert.Same(t, got[0], inv)
	}
	assert.Equal(t, 1, pool.Len())
	assert.Equal(t, defs[0].Key(), got[0].Route())
}

func TestPool_RoutesNeverShare(t *testing.T) {
	t.Parallel()

	hp := config.HostAndPort{Host: "localhost", Port: 5001}
	defs := buildRoutes(t, nil, routeTo("/a", hp), routeTo("/b", hp))
	pool := NewPool()

	a := pool.Get(defs[0])
	b := pool.Get(defs[1])
	assert.NotSame(t, a, b)
	assert.NotSame(t, a.transport, b.transport)
	assert.Same(t, a, pool.Get(defs[0]))
	assert.Equal(t, 2, pool.Len())
}

func TestPool_Reset(t *testing.T) {
	t.Parallel()

	metrics := observability.NewMetrics("test")
	pool := NewPool(WithMetrics(metrics), WithLogger(observability.NopLogger()))
	defs := buildRoutes(t, nil, routeTo("/a", config.HostAndPort{Host: "localhost", Port: 1}))

	before := pool.Get(defs[0])
	pool.Reset()
	assert.Zero(t, pool.Len())
	assert.NotSame(t, before, pool.Get(defs[0]))
	assert.Equal(t, 1, pool.Len())
}

func TestPool_TransportOptions(t *testing.T) {
	t.Parallel()

	hp := config.HostAndPort{Host: "localhost", Port: 5001}
	tuned := routeTo("/tuned", hp)
	tuned.HTTPHandlerOptions = &config.HTTPHandlerOptions{
		MaxConnectionsPerServer:         7,
		PooledConnectionLifetimeSeconds: 10,
	}
	tuned.DangerousAcceptAnyServerCertificateValidator = true

	defs := buildRoutes(t, nil, routeTo("/plain", hp), tuned)
	pool := NewPool(WithTransportConfig(DefaultTransportConfig()))

	plain := pool.Get(defs[0])
	assert.Zero(t, plain.transport.MaxConnsPerHost)
	assert.Equal(t, 90*time.Second, plain.transport.IdleConnTimeout)
	assert.NotNil(t, plain.transport.Proxy)
	assert.Nil(t, plain.transport.TLSClientConfig)
	assert.Nil(t, plain.client.Jar)

	inv := pool.Get(defs[1])
	assert.Equal(t, 7, inv.transport.MaxConnsPerHost)
	assert.Equal(t, 10*time.Second, inv.transport.IdleConnTimeout)
	assert.Nil(t, inv.transport.Proxy)
	require.NotNil(t, inv.transport.TLSClientConfig)
	assert.True(t, inv.transport.TLSClientConfig.InsecureSkipVerify)
}

func TestPool_TracingHandler(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Traceparent") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  "test",
		Enabled:      true,
		SamplingRate: 1,
	})
	require.NoError(t, err)

	rc := routeTo("/traced", hostAndPort(t, srv))
	rc.HTTPHandlerOptions = &config.HTTPHandlerOptions{UseTracing: true}
	defs := buildRoutes(t, nil, rc)

	pool := NewPool(WithTracer(tracer))
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := pool.Get(defs[0]).Send(req.Context(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
