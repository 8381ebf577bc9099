package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func probe(t *testing.T, h gin.HandlerFunc) (int, Response) {
	t.Helper()

	engine := gin.New()
	engine.GET("/probe", h)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/probe", nil))

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestLivenessHandler(t *testing.T) {
	t.Parallel()

	h := NewHandler(
		WithVersion("1.2.3"),
		WithDetails(func() map[string]any { return map[string]any{"routes": 3} }),
	)

	code, resp := probe(t, h.LivenessHandler())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.NotEmpty(t, resp.Uptime)
	assert.EqualValues(t, 3, resp.Details["routes"])
}

func TestReadinessHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checks     []Check
		wantCode   int
		wantStatus Status
	}{
		{
			name:       "no checks",
			wantCode:   http.StatusOK,
			wantStatus: StatusHealthy,
		},
		{
			name: "all pass",
			checks: []Check{
				PingCheck("redis", pingerFunc(func(context.Context) error { return nil })),
				NewCheck("catalog", func(context.Context) error { return nil }),
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusHealthy,
		},
		{
			name: "one fails",
			checks: []Check{
				PingCheck("redis", pingerFunc(func(context.Context) error { return errors.New("refused") })),
				NewCheck("catalog", func(context.Context) error { return nil }),
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusUnhealthy,
		},
		{
			name:       "nil pinger",
			checks:     []Check{PingCheck("consul", nil)},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHandler()
			for _, c := range tt.checks {
				h.AddCheck(c)
			}

			code, resp := probe(t, h.ReadinessHandler())
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Len(t, resp.Checks, len(tt.checks))
		})
	}
}

func TestReadinessHandler_Timeout(t *testing.T) {
	t.Parallel()

	h := NewHandler(WithTimeout(20 * time.Millisecond))
	h.AddCheck(NewCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	code, resp := probe(t, h.ReadinessHandler())
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusUnhealthy, resp.Checks["slow"].Status)
}

func TestCachedCheck(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	now := time.Now()
	c := NewCachedCheck(NewCheck("x", func(context.Context) error {
		calls.Add(1)
		return nil
	}), time.Minute)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Check(context.Background()))
	require.NoError(t, c.Check(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "x", c.Name())

	now = now.Add(2 * time.Minute)
	require.NoError(t, c.Check(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
}
