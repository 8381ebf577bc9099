package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/routegw/internal/util"
)

func validRoute() RouteConfig {
	return RouteConfig{
		UpstreamPathTemplate:   "/users/{id}",
		UpstreamHTTPMethod:     []string{"GET"},
		DownstreamPathTemplate: "/api/users/{id}",
		DownstreamScheme:       "http",
		DownstreamHostAndPorts: []HostAndPort{{Host: "localhost", Port: 8081}},
	}
}

func configWithRoutes(routes ...RouteConfig) *GatewayConfig {
	cfg := DefaultConfig()
	cfg.Spec.Routes = routes
	return cfg
}

func TestValidateConfig_Valid(t *testing.T) {
	t.Parallel()

	sticky := validRoute()
	sticky.LoadBalancerOptions = &LoadBalancerOptions{Type: LoadBalancerCookieStickySessions, Key: "sid", Expiry: 1000}
	sticky.UpstreamPathTemplate = "/sticky/{id}"

	discovered := validRoute()
	discovered.UpstreamPathTemplate = "/orders"
	discovered.DownstreamPathTemplate = "/orders"
	discovered.DownstreamHostAndPorts = nil
	discovered.ServiceName = "orders"

	cfg := configWithRoutes(validRoute(), sticky, discovered)
	cfg.Spec.Global.ServiceDiscovery = &ServiceDiscoveryConfig{Type: "Consul", Host: "localhost", Port: 8500}
	cfg.Spec.Global.SessionStore = &SessionStoreConfig{Type: "redis", Address: "localhost:6379"}

	assert.NoError(t, ValidateConfig(cfg))
}

func TestValidateConfig_Nil(t *testing.T) {
	t.Parallel()

	err := ValidateConfig(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration is nil")
}

func TestValidateConfig_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(cfg *GatewayConfig)
		wantPath string
	}{
		{
			name:     "wrong kind",
			mutate:   func(cfg *GatewayConfig) { cfg.Kind = "Route" },
			wantPath: "kind",
		},
		{
			name:     "bad api version",
			mutate:   func(cfg *GatewayConfig) { cfg.APIVersion = "v1" },
			wantPath: "apiVersion",
		},
		{
			name:     "listener port",
			mutate:   func(cfg *GatewayConfig) { cfg.Spec.Listener.Port = 0 },
			wantPath: "spec.listener.port",
		},
		{
			name:     "qos exceeded status",
			mutate:   func(cfg *GatewayConfig) { cfg.Spec.Global.QoSExceededStatusCode = 200 },
			wantPath: "spec.globalConfiguration.qosExceededStatusCode",
		},
		{
			name: "redis without address",
			mutate: func(cfg *GatewayConfig) {
				cfg.Spec.Global.SessionStore = &SessionStoreConfig{Type: "redis"}
			},
			wantPath: "spec.globalConfiguration.sessionStore.address",
		},
		{
			name:     "template not rooted",
			mutate:   func(cfg *GatewayConfig) { cfg.Spec.Routes[0].UpstreamPathTemplate = "users" },
			wantPath: "spec.routes[0].upstreamPathTemplate",
		},
		{
			name:     "unbalanced braces",
			mutate:   func(cfg *GatewayConfig) { cfg.Spec.Routes[0].DownstreamPathTemplate = "/api/{id" },
			wantPath: "spec.routes[0].downstreamPathTemplate",
		},
		{
			name:     "repeated placeholder",
			mutate:   func(cfg *GatewayConfig) { cfg.Spec.Routes[0].UpstreamPathTemplate = "/a/{id}/b/{id}" },
			wantPath: "spec.routes[0].upstreamPathTemplate",
		},
		{
			name:     "invalid method",
			mutate:   func(cfg *GatewayConfig) { cfg.Spec.Routes[0].UpstreamHTTPMethod = []string{"GE T"} },
			wantPath: "spec.routes[0].upstreamHttpMethod[0]",
		},
		{
			name:     "bad scheme",
			mutate:   func(cfg *GatewayConfig) { cfg.Spec.Routes[0].DownstreamScheme = "ftp" },
			wantPath: "spec.routes[0].downstreamScheme",
		},
		{
			name:     "no downstream",
			mutate:   func(cfg *GatewayConfig) { cfg.Spec.Routes[0].DownstreamHostAndPorts = nil },
			wantPath: "spec.routes[0]",
		},
		{
			name: "service name without discovery",
			mutate: func(cfg *GatewayConfig) {
				cfg.Spec.Routes[0].DownstreamHostAndPorts = nil
				cfg.Spec.Routes[0].ServiceName = "users"
			},
			wantPath: "spec.routes[0].serviceName",
		},
		{
			name:     "bad host port",
			mutate:   func(cfg *GatewayConfig) { cfg.Spec.Routes[0].DownstreamHostAndPorts[0].Port = 0 },
			wantPath: "spec.routes[0].downstreamHostAndPorts[0].port",
		},
		{
			name: "sticky without key",
			mutate: func(cfg *GatewayConfig) {
				cfg.Spec.Routes[0].LoadBalancerOptions = &LoadBalancerOptions{Type: LoadBalancerCookieStickySessions, Expiry: 10}
			},
			wantPath: "spec.routes[0].loadBalancerOptions.key",
		},
		{
			name: "unknown balancer",
			mutate: func(cfg *GatewayConfig) {
				cfg.Spec.Routes[0].LoadBalancerOptions = &LoadBalancerOptions{Type: "Random"}
			},
			wantPath: "spec.routes[0].loadBalancerOptions.type",
		},
		{
			name: "negative qos",
			mutate: func(cfg *GatewayConfig) {
				cfg.Spec.Routes[0].QoSOptions = &QoSOptions{TimeoutValue: -1}
			},
			wantPath: "spec.routes[0].qosOptions.timeoutValue",
		},
		{
			name: "header routing trigger",
			mutate: func(cfg *GatewayConfig) {
				cfg.Spec.Routes[0].UpstreamHeaderRouting = &HeaderRoutingConfig{
					TriggerOn: "some",
					Headers:   map[string][]string{"X-Tenant": {"a"}},
				}
			},
			wantPath: "spec.routes[0].upstreamHeaderRouting.triggerOn",
		},
		{
			name:     "duplicate route",
			mutate:   func(cfg *GatewayConfig) { cfg.Spec.Routes = append(cfg.Spec.Routes, validRoute()) },
			wantPath: "spec.routes[1]",
		},
		{
			name: "sampling rate",
			mutate: func(cfg *GatewayConfig) {
				cfg.Spec.Observability = &ObservabilityConfig{Tracing: &TracingConfig{SamplingRate: 2}}
			},
			wantPath: "spec.observability.tracing.samplingRate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := configWithRoutes(validRoute())
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, util.ErrConfigInvalid))

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			paths := make([]string, 0, len(verrs))
			for _, ve := range verrs {
				paths = append(paths, ve.Path)
			}
			assert.Contains(t, paths, tt.wantPath)
		})
	}
}

func TestValidateConfig_HeaderRoutingAllowsSameTemplate(t *testing.T) {
	t.Parallel()

	tenant := validRoute()
	tenant.UpstreamHeaderRouting = &HeaderRoutingConfig{
		TriggerOn: "All",
		Headers:   map[string][]string{"X-Tenant": {"blue"}},
	}

	assert.NoError(t, ValidateConfig(configWithRoutes(validRoute(), tenant)))
}

func TestValidationErrors_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "no validation errors", ValidationErrors{}.Error())
	assert.Equal(t, "kind: bad", ValidationErrors{{Path: "kind", Message: "bad"}}.Error())
	assert.Contains(t, ValidationErrors{{Message: "a"}, {Message: "b"}}.Error(), "2 validation errors")
}

func TestGlobalConfiguration_Effective(t *testing.T) {
	t.Parallel()

	var nilGlobal *GlobalConfiguration
	assert.Equal(t, DefaultRequestIDKey, nilGlobal.EffectiveRequestIDKey())
	assert.Equal(t, DefaultQoSExceededStatusCode, nilGlobal.EffectiveQoSExceededStatusCode())

	global := &GlobalConfiguration{RequestIDKey: "X-Correlation-ID", QoSExceededStatusCode: 429}
	assert.Equal(t, "X-Correlation-ID", global.EffectiveRequestIDKey())
	assert.Equal(t, 429, global.EffectiveQoSExceededStatusCode())
}

func TestObservabilityConfig_MetricsPath(t *testing.T) {
	t.Parallel()

	var obs *ObservabilityConfig
	assert.Empty(t, obs.MetricsPath())
	assert.Equal(t, "/metrics", (&ObservabilityConfig{Metrics: &MetricsConfig{Enabled: true}}).MetricsPath())
	assert.Equal(t, "/m", (&ObservabilityConfig{Metrics: &MetricsConfig{Enabled: true, Path: "/m"}}).MetricsPath())
}
