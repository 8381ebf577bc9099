package util

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRouteNotFoundError(t *testing.T) {
	t.Parallel()

	err := NewRouteNotFoundError("GET", "/api/users")

	assert.Equal(t, "no route found for GET /api/users", err.Error())
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, IsClientError(err))
	assert.False(t, IsServerError(err))
}

func TestServicesUnavailableError(t *testing.T) {
	t.Parallel()

	err := NewServicesUnavailableError("RoundRobin")
	assert.Equal(t, "there were no services in RoundRobin", err.Error())
	assert.True(t, errors.Is(err, ErrNoServicesAvailable))
	assert.True(t, IsServerError(err))

	cause := errors.New("consul down")
	wrapped := NewServicesUnavailableErrorWithCause("RoundRobin", cause)
	assert.True(t, errors.Is(wrapped, cause))
	assert.Contains(t, wrapped.Error(), "consul down")
}

func TestTimeoutError(t *testing.T) {
	t.Parallel()

	err := NewTimeoutError("orders", TimeoutLimitQoS, 500*time.Millisecond)

	assert.Equal(t, "route orders: qos timeout after 500ms", err.Error())
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.False(t, errors.Is(err, ErrBackendUnavail))

	wrapped := fmt.Errorf("send: %w", err)
	te, ok := AsTimeout(wrapped)
	assert.True(t, ok)
	assert.Equal(t, TimeoutLimitQoS, te.Limit)

	_, ok = AsTimeout(errors.New("plain"))
	assert.False(t, ok)
}

func TestTimeoutError_AsContextCause(t *testing.T) {
	t.Parallel()

	cause := NewTimeoutError("orders", TimeoutLimitRoute, time.Millisecond)
	ctx, cancel := context.WithTimeoutCause(context.Background(), time.Millisecond, cause)
	defer cancel()

	<-ctx.Done()

	te, ok := AsTimeout(context.Cause(ctx))
	assert.True(t, ok)
	assert.Equal(t, TimeoutLimitRoute, te.Limit)
}

func TestTransportError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := NewTransportError("orders", "http://10.0.0.1:80", cause)

	assert.True(t, errors.Is(err, ErrBackendUnavail))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection refused")
	assert.True(t, IsServerError(err))
}

func TestCircuitOpenError(t *testing.T) {
	t.Parallel()

	err := NewCircuitOpenError("orders", "open")

	assert.Equal(t, "circuit breaker orders is open", err.Error())
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.True(t, IsServerError(err))
}

func TestConfigError(t *testing.T) {
	t.Parallel()

	err := NewConfigError("spec.routes[0]", "missing template")
	assert.Equal(t, "config error at spec.routes[0]: missing template", err.Error())
	assert.True(t, errors.Is(err, ErrConfigInvalid))

	plain := NewConfigError("", "broken")
	assert.Equal(t, "config error: broken", plain.Error())

	cause := errors.New("bad regex")
	withCause := NewConfigErrorWithCause("x", "y", cause)
	assert.True(t, errors.Is(withCause, cause))
}

func TestIsCanceled(t *testing.T) {
	t.Parallel()

	assert.True(t, IsCanceled(fmt.Errorf("send: %w", ErrRequestCanceled)))
	assert.False(t, IsCanceled(context.Canceled))
	assert.True(t, IsClientError(ErrRequestCanceled))
	assert.False(t, IsClientError(nil))
	assert.False(t, IsServerError(nil))
}
