// Package route builds the immutable route catalog from configuration.
//
// A Definition carries everything the dispatch path needs for one route:
// its compiled upstream template, downstream target, load-balancing, QoS
// and outbound handler options. Key returns the route identity that keys
// every per-route cache (balancers, resilience pipelines, invokers).
package route
