package router

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// regexCacheMetrics contains Prometheus metrics for the template regex cache.
type regexCacheMetrics struct {
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter
	cacheSize      prometheus.Gauge
}

var (
	regexCacheMetricsInstance *regexCacheMetrics
	regexCacheMetricsOnce     sync.Once
)

// getRegexCacheMetrics returns the singleton regex cache metrics instance.
func getRegexCacheMetrics() *regexCacheMetrics {
	regexCacheMetricsOnce.Do(func() {
		opts := func(name, help string) prometheus.Opts {
			return prometheus.Opts{
				Namespace: "routegw",
				Subsystem: "router",
				Name:      name,
				Help:      help,
			}
		}
		regexCacheMetricsInstance = &regexCacheMetrics{
			cacheHits: promauto.NewCounter(prometheus.CounterOpts(
				opts("template_cache_hits_total", "Compiled template lookups served from cache"))),
			cacheMisses: promauto.NewCounter(prometheus.CounterOpts(
				opts("template_cache_misses_total", "Compiled template lookups that compiled a pattern"))),
			cacheEvictions: promauto.NewCounter(prometheus.CounterOpts(
				opts("template_cache_evictions_total", "Compiled patterns evicted from cache"))),
			cacheSize: promauto.NewGauge(prometheus.GaugeOpts(
				opts("template_cache_size", "Current number of compiled patterns in cache"))),
		}
	})
	return regexCacheMetricsInstance
}

// RegisterMetrics registers the template cache metrics with reg so they
// are served next to the gateway metrics.
func RegisterMetrics(reg prometheus.Registerer) error {
	m := getRegexCacheMetrics()
	for _, c := range []prometheus.Collector{m.cacheHits, m.cacheMisses, m.cacheEvictions, m.cacheSize} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}
