// Package gateway provides the inbound HTTP server of the gateway.
//
// The Gateway owns a gin engine with recovery, request id and access log
// middleware. Requests that match no administrative endpoint fall through
// to the dispatcher. The engine also serves:
//
//	GET  /health               liveness with uptime and route count
//	GET  /ready                readiness checks
//	GET  /admin/configuration  the active configuration
//	POST /admin/configuration  validate, build and swap a new configuration
//	GET  <metrics path>        Prometheus metrics, when enabled
//
// # Usage
//
//	gw, err := gateway.New(cfg, dispatcher,
//	    gateway.WithLogger(logger),
//	    gateway.WithMetrics(metrics),
//	    gateway.WithCatalogBuilder(build),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := gw.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer gw.Stop(ctx)
//
// # Configuration Reload
//
// Reload validates a configuration, builds its route catalog and swaps it
// into the dispatcher. A configuration that fails either step leaves the
// running catalog untouched:
//
//	if err := gw.Reload(newConfig); err != nil {
//	    logger.Error("reload failed", observability.Error(err))
//	}
package gateway
