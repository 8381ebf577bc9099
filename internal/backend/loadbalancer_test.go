package backend

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/routegw/internal/util"
)

func TestRoundRobin_Lease(t *testing.T) {
	t.Parallel()

	lb := NewRoundRobin(NewStaticResolver(instancesOf("10.0.0.1", "10.0.0.2", "10.0.0.3")))

	var got []string
	for i := 0; i < 6; i++ {
		s, err := lb.Lease(context.Background(), nil)
		require.NoError(t, err)
		got = append(got, s.Host)
	}

	assert.Equal(t, []string{
		"10.0.0.1", "10.0.0.2", "10.0.0.3",
		"10.0.0.1", "10.0.0.2", "10.0.0.3",
	}, got)
}

func TestRoundRobin_Lease_Fairness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		instances int
		leases    int
	}{
		{name: "one instance", instances: 1, leases: 5},
		{name: "even split", instances: 4, leases: 40},
		{name: "uneven split", instances: 3, leases: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hosts := make([]string, tt.instances)
			for i := range hosts {
				hosts[i] = string(rune('a' + i))
			}
			lb := NewRoundRobin(NewStaticResolver(instancesOf(hosts...)))

			seen := make(map[string]int)
			for i := 0; i < tt.leases; i++ {
				s, err := lb.Lease(context.Background(), nil)
				require.NoError(t, err)
				seen[s.Host]++
			}

			floor := tt.leases / tt.instances
			for i, h := range hosts {
				want := floor
				if i < tt.leases%tt.instances {
					want++
				}
				assert.Equal(t, want, seen[h], "instance %s", h)
			}
		})
	}
}

func TestRoundRobin_Lease_ShrinkingList(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	list := instancesOf("a", "b", "c")
	lb := NewRoundRobin(ResolverFunc(func(context.Context) ([]ServiceInstance, error) {
		mu.Lock()
		defer mu.Unlock()
		return list, nil
	}))

	for i := 0; i < 2; i++ {
		_, err := lb.Lease(context.Background(), nil)
		require.NoError(t, err)
	}

	mu.Lock()
	list = instancesOf("a")
	mu.Unlock()

	s, err := lb.Lease(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "a", s.Host)
}

func TestRoundRobin_Lease_Concurrent(t *testing.T) {
	t.Parallel()

	lb := NewRoundRobin(NewStaticResolver(instancesOf("a", "b", "c", "d")))

	const workers, perWorker = 8, 100
	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s, err := lb.Lease(context.Background(), nil)
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				seen[s.Host]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for _, h := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, workers*perWorker/4, seen[h])
	}
}

func TestLoadBalancers_NoServices(t *testing.T) {
	t.Parallel()

	empty := NewStaticResolver(nil)
	failing := ResolverFunc(func(context.Context) ([]ServiceInstance, error) {
		return nil, errors.New("registry down")
	})

	tests := []struct {
		name string
		lb   LoadBalancer
	}{
		{name: "round robin empty", lb: NewRoundRobin(empty)},
		{name: "round robin resolver error", lb: NewRoundRobin(failing)},
		{name: "least connection empty", lb: NewLeastConnection(empty)},
		{name: "no load balancer empty", lb: NewNoLoadBalancer(empty)},
		{name: "no load balancer resolver error", lb: NewNoLoadBalancer(failing)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := tt.lb.Lease(context.Background(), nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, util.ErrNoServicesAvailable)

			var unavailable *util.ServicesUnavailableError
			assert.ErrorAs(t, err, &unavailable)
		})
	}
}

func TestLeastConnection_Lease(t *testing.T) {
	t.Parallel()

	lb := NewLeastConnection(NewStaticResolver(instancesOf("a", "b")))
	ctx := context.Background()

	first, err := lb.Lease(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "a", first.Host)

	second, err := lb.Lease(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", second.Host)

	lb.Release(first)

	third, err := lb.Lease(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "a", third.Host)
}

func TestLeastConnection_PrunesRemovedInstances(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	list := instancesOf("a", "b", "c")
	lb := NewLeastConnection(ResolverFunc(func(context.Context) ([]ServiceInstance, error) {
		mu.Lock()
		defer mu.Unlock()
		return list, nil
	}))

	for i := 0; i < 3; i++ {
		_, err := lb.Lease(context.Background(), nil)
		require.NoError(t, err)
	}

	mu.Lock()
	list = instancesOf("a")
	mu.Unlock()

	_, err := lb.Lease(context.Background(), nil)
	require.NoError(t, err)

	lb.mu.Lock()
	defer lb.mu.Unlock()
	assert.Len(t, lb.leases, 1)
	assert.Equal(t, 2, lb.leases[ServiceInstance{Host: "a", Port: 8080}])
}

func TestNoLoadBalancer_Lease(t *testing.T) {
	t.Parallel()

	lb := NewNoLoadBalancer(NewStaticResolver(instancesOf("a", "b")))
	for i := 0; i < 3; i++ {
		s, err := lb.Lease(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, "a", s.Host)
	}
}

func TestServiceInstance(t *testing.T) {
	t.Parallel()

	s := ServiceInstance{Host: "10.0.0.1", Port: 8080}
	assert.Equal(t, "10.0.0.1:8080", s.Address())
	assert.Equal(t, "10.0.0.1:8080", s.String())
	assert.False(t, s.IsZero())
	assert.True(t, ServiceInstance{}.IsZero())

	v6 := ServiceInstance{Host: "::1", Port: 80}
	assert.Equal(t, "[::1]:80", v6.Address())
}

func TestStaticResolver_CopiesInput(t *testing.T) {
	t.Parallel()

	in := instancesOf("a")
	r := NewStaticResolver(in)
	in[0].Host = "mutated"

	got, err := r.Instances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", got[0].Host)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Instances(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
