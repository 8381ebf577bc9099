package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

func instancesOf(hosts ...string) []ServiceInstance {
	out := make([]ServiceInstance, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, ServiceInstance{Host: h, Port: 8080})
	}
	return out
}

// recordingBalancer leases from a RoundRobin and records releases.
type recordingBalancer struct {
	inner *RoundRobin

	mu       sync.Mutex
	leases   int
	released []ServiceInstance
}

func newRecordingBalancer(hosts ...string) *recordingBalancer {
	return &recordingBalancer{inner: NewRoundRobin(NewStaticResolver(instancesOf(hosts...)))}
}

func (b *recordingBalancer) Lease(ctx context.Context, r *http.Request) (ServiceInstance, error) {
	b.mu.Lock()
	b.leases++
	b.mu.Unlock()
	return b.inner.Lease(ctx, r)
}

func (b *recordingBalancer) Release(s ServiceInstance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = append(b.released, s)
}

func (b *recordingBalancer) leaseCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.leases
}

func (b *recordingBalancer) releasedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.released)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func requestWithCookie(name, value string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if name != "" {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return req
}
