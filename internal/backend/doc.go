// Package backend selects downstream service instances.
//
// A Resolver yields the current instances of a route, either a static list
// or a Consul health query. A LoadBalancer leases one instance per request:
// RoundRobin, LeastConnection, NoLoadBalancer, or CookieStickySessions
// wrapping any of them for cookie affinity. Registry keeps one balancer per
// route identity and builds it from the strategy name the route configures.
package backend
