package requester

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/vyrodovalexey/routegw/internal/route"
)

// TransportConfig contains outbound connection pool settings shared by all
// invokers.
type TransportConfig struct {
	DialTimeout           time.Duration
	KeepAlive             time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	ResponseHeaderTimeout time.Duration
	ExpectContinueTimeout time.Duration
	DisableCompression    bool
}

// DefaultTransportConfig returns default transport settings.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		DialTimeout:           30 * time.Second,
		KeepAlive:             30 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// newTransport creates the transport of one route.
func newTransport(cfg TransportConfig, opts route.HandlerOptions) *http.Transport {
	idle := cfg.IdleConnTimeout
	if lifetime := opts.PooledConnectionLifetime; lifetime > 0 && (idle <= 0 || lifetime < idle) {
		idle = lifetime
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       opts.MaxConnectionsPerServer,
		IdleConnTimeout:       idle,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: cfg.ExpectContinueTimeout,
		DisableCompression:    cfg.DisableCompression,
	}

	if opts.UseProxy {
		transport.Proxy = http.ProxyFromEnvironment
	}

	if opts.AcceptAnyCertificate {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // enabled per route by configuration
			MinVersion:         tls.VersionTLS12,
		}
	}

	return transport
}
