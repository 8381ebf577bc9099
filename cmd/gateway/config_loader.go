package main

import (
	"github.com/vyrodovalexey/routegw/internal/config"
	"github.com/vyrodovalexey/routegw/internal/observability"
)

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.GatewayConfig {
	logger.Info("starting routegw",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fatalWithSync(logger, "failed to load configuration", observability.Error(err))
		return nil // unreachable in production; allows test to continue
	}

	if err := config.ValidateConfig(cfg); err != nil {
		fatalWithSync(logger, "invalid configuration", observability.Error(err))
		return nil // unreachable in production; allows test to continue
	}

	discovery := "none"
	if sd := cfg.Spec.Global.ServiceDiscovery; sd != nil {
		discovery = sd.Type
	}

	logger.Info("configuration loaded",
		observability.String("name", cfg.Metadata.Name),
		observability.String("listener", cfg.Spec.Listener.Address()),
		observability.Int("routes", len(cfg.Spec.Routes)),
		observability.String("service_discovery", discovery),
	)

	return cfg
}

// initTracer initializes the tracer.
func initTracer(cfg *config.GatewayConfig, logger observability.Logger) *observability.Tracer {
	tracerCfg := observability.TracerConfig{
		ServiceName:  "routegw",
		Enabled:      false,
		SamplingRate: 1.0,
	}

	if cfg.Spec.Observability != nil && cfg.Spec.Observability.Tracing != nil {
		tracerCfg.Enabled = cfg.Spec.Observability.Tracing.Enabled
		tracerCfg.SamplingRate = cfg.Spec.Observability.Tracing.SamplingRate
		tracerCfg.OTLPEndpoint = cfg.Spec.Observability.Tracing.OTLPEndpoint
		if cfg.Spec.Observability.Tracing.ServiceName != "" {
			tracerCfg.ServiceName = cfg.Spec.Observability.Tracing.ServiceName
		}
	}

	tracer, err := observability.NewTracer(tracerCfg)
	if err != nil {
		fatalWithSync(logger, "failed to initialize tracer", observability.Error(err))
		return nil // unreachable in production; allows test to continue
	}

	return tracer
}

// metricsNamespace returns the configured Prometheus namespace.
func metricsNamespace(cfg *config.GatewayConfig) string {
	if obs := cfg.Spec.Observability; obs != nil && obs.Metrics != nil && obs.Metrics.Namespace != "" {
		return obs.Metrics.Namespace
	}
	return "routegw"
}
