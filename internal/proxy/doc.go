// Package proxy dispatches inbound requests to downstream services.
//
// The Dispatcher is the gateway's catch-all http.Handler. For every request
// it selects a route from the current catalog, leases an instance from the
// route's load balancer, builds the downstream URL, and sends the request
// through the route's resilience pipeline and pooled invoker before copying
// the response back.
//
// # Error Mapping
//
// Failures are mapped to stable status codes:
//
//	no matching route           404
//	caller canceled             499
//	circuit open                qosExceededStatusCode (503 by default)
//	timeout                     503
//	no services available       503
//	downstream unreachable      502
//	anything else               500
//
// # Usage
//
//	d, err := proxy.NewDispatcher(catalog,
//	    proxy.WithLogger(logger),
//	    proxy.WithMetrics(metrics),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine.NoRoute(gin.WrapH(d))
//
// Swap replaces the catalog atomically and drops the per-route balancers,
// pipelines and invokers built for the previous one.
package proxy
