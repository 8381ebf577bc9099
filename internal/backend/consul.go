package backend

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	consulapi "github.com/hashicorp/consul/api"

	"github.com/vyrodovalexey/routegw/internal/config"
	"github.com/vyrodovalexey/routegw/internal/observability"
)

// ProviderConsul is the discovery provider type backed by Consul.
const ProviderConsul = "Consul"

const defaultConsulTimeout = 5 * time.Second

// ConsulProvider resolves service names through the Consul health API.
type ConsulProvider struct {
	client  *consulapi.Client
	tag     string
	timeout time.Duration
	logger  observability.Logger
}

// NewConsulProvider creates a provider from discovery configuration.
func NewConsulProvider(cfg *config.ServiceDiscoveryConfig, logger observability.Logger) (*ConsulProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("consul provider: configuration is required")
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	consulCfg := consulapi.DefaultConfig()
	if cfg.Host != "" {
		port := cfg.Port
		if port == 0 {
			port = 8500
		}
		consulCfg.Address = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	}
	if cfg.Scheme != "" {
		consulCfg.Scheme = cfg.Scheme
	}
	if cfg.Token != "" {
		consulCfg.Token = cfg.Token
	}

	client, err := consulapi.NewClient(consulCfg)
	if err != nil {
		return nil, fmt.Errorf("consul provider: %w", err)
	}

	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = defaultConsulTimeout
	}

	logger.Info("consul service discovery configured",
		observability.String("address", consulCfg.Address),
		observability.String("tag", cfg.Tag),
	)

	return &ConsulProvider{
		client:  client,
		tag:     cfg.Tag,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Resolver returns a resolver for the named service.
func (p *ConsulProvider) Resolver(service string) Resolver {
	return ResolverFunc(func(ctx context.Context) ([]ServiceInstance, error) {
		return p.Instances(ctx, service)
	})
}

// Instances queries the passing instances of service. The result is sorted
// by address so balancers see a stable order between queries.
func (p *ConsulProvider) Instances(ctx context.Context, service string) ([]ServiceInstance, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	opts := (&consulapi.QueryOptions{}).WithContext(ctx)
	entries, _, err := p.client.Health().Service(service, p.tag, true, opts)
	if err != nil {
		p.logger.Warn("consul health query failed",
			observability.String("service", service),
			observability.Error(err),
		)
		return nil, fmt.Errorf("consul health query for %s: %w", service, err)
	}

	instances := make([]ServiceInstance, 0, len(entries))
	for _, entry := range entries {
		if entry == nil || entry.Service == nil {
			continue
		}
		host := entry.Service.Address
		if host == "" && entry.Node != nil {
			host = entry.Node.Address
		}
		if host == "" || entry.Service.Port == 0 {
			continue
		}
		instances = append(instances, ServiceInstance{Host: host, Port: entry.Service.Port})
	}

	sort.Slice(instances, func(i, j int) bool {
		if instances[i].Host != instances[j].Host {
			return instances[i].Host < instances[j].Host
		}
		return instances[i].Port < instances[j].Port
	})

	return instances, nil
}

// Ping checks that the Consul agent is reachable and knows a cluster
// leader.
func (p *ConsulProvider) Ping(context.Context) error {
	leader, err := p.client.Status().Leader()
	if err != nil {
		return fmt.Errorf("consul status: %w", err)
	}
	if leader == "" {
		return fmt.Errorf("consul status: no cluster leader")
	}
	return nil
}
