package backend

import (
	"context"
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"github.com/vyrodovalexey/routegw/internal/observability"
)

const stickyLockStripes = 64

// CookieStickySessions pins a client, identified by a cookie value, to the
// instance its first request leased. Sessions expire TTL after their last
// use; the instance is then released to the inner balancer.
type CookieStickySessions struct {
	inner     LoadBalancer
	cookie    string
	ttl       time.Duration
	store     SessionStore
	namespace string
	logger    observability.Logger
	metrics   *observability.Metrics
	now       func() time.Time

	locks [stickyLockStripes]sync.Mutex

	timersMu sync.Mutex
	timers   map[string]*time.Timer
	closed   bool
}

// StickyOption configures CookieStickySessions.
type StickyOption func(*CookieStickySessions)

// WithStickyLogger sets the logger.
func WithStickyLogger(logger observability.Logger) StickyOption {
	return func(s *CookieStickySessions) {
		s.logger = logger
	}
}

// WithStickyMetrics sets the metrics sink for the live session gauge.
func WithStickyMetrics(m *observability.Metrics) StickyOption {
	return func(s *CookieStickySessions) {
		s.metrics = m
	}
}

// WithStickyNamespace prefixes session keys, isolating routes that share
// one store.
func WithStickyNamespace(ns string) StickyOption {
	return func(s *CookieStickySessions) {
		s.namespace = ns
	}
}

// WithStickyClock overrides the time source.
func WithStickyClock(now func() time.Time) StickyOption {
	return func(s *CookieStickySessions) {
		s.now = now
	}
}

// NewCookieStickySessions wraps inner with cookie affinity. A nil store
// defaults to a MemoryStore.
func NewCookieStickySessions(
	inner LoadBalancer,
	cookie string,
	ttl time.Duration,
	store SessionStore,
	opts ...StickyOption,
) *CookieStickySessions {
	if store == nil {
		store = NewMemoryStore()
	}
	s := &CookieStickySessions{
		inner:  inner,
		cookie: cookie,
		ttl:    ttl,
		store:  store,
		logger: observability.NopLogger(),
		now:    time.Now,
		timers: make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lease returns the session's instance when the request carries a cookie
// with a live session, refreshing its expiry. Otherwise it leases from the
// inner balancer and opens a session for the cookie value.
func (s *CookieStickySessions) Lease(ctx context.Context, r *http.Request) (ServiceInstance, error) {
	key := s.sessionKey(r)
	if key == "" {
		return s.inner.Lease(ctx, r)
	}

	mu := s.lockFor(key)

	mu.Lock()
	if instance, ok := s.refreshLocked(ctx, key); ok {
		mu.Unlock()
		return instance, nil
	}
	mu.Unlock()

	instance, err := s.inner.Lease(ctx, r)
	if err != nil {
		return ServiceInstance{}, err
	}

	mu.Lock()
	defer mu.Unlock()

	if existing, ok := s.refreshLocked(ctx, key); ok {
		// Another request opened the session first.
		s.inner.Release(instance)
		return existing, nil
	}

	// A closed balancer serves the lease but opens no session.
	if s.isClosed() {
		return instance, nil
	}

	session := StickySession{Key: key, Instance: instance, Expiry: s.now().Add(s.ttl)}
	if err := s.store.Set(ctx, session); err != nil {
		s.logger.Warn("failed to store sticky session",
			observability.String("key", key),
			observability.Error(err))
		return instance, nil
	}
	if !s.schedule(key, s.ttl) {
		// Closed while storing; nothing would expire the session.
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn("failed to delete sticky session",
				observability.String("key", key),
				observability.Error(err))
		}
	}

	return instance, nil
}

// Release is a no-op; sessions release their instance on expiry.
func (s *CookieStickySessions) Release(ServiceInstance) {}

// Close stops all expiry timers and deletes the sessions they tracked.
// Instances are not released to the inner balancer.
func (s *CookieStickySessions) Close() {
	s.timersMu.Lock()
	s.closed = true
	keys := make([]string, 0, len(s.timers))
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
		s.metrics.AddStickySessions(-1)
		keys = append(keys, key)
	}
	s.timersMu.Unlock()

	ctx := context.Background()
	for _, key := range keys {
		mu := s.lockFor(key)
		mu.Lock()
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn("failed to delete sticky session on close",
				observability.String("key", key),
				observability.Error(err))
		}
		mu.Unlock()
	}
}

// refreshLocked extends a live session and returns its instance. An expired
// session found on the way is removed. Must be called with the key lock held.
func (s *CookieStickySessions) refreshLocked(ctx context.Context, key string) (ServiceInstance, bool) {
	session, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn("failed to read sticky session",
			observability.String("key", key),
			observability.Error(err))
		return ServiceInstance{}, false
	}
	if !ok {
		return ServiceInstance{}, false
	}

	now := s.now()
	if !session.Live(now) {
		s.removeLocked(ctx, session)
		return ServiceInstance{}, false
	}

	session.Expiry = now.Add(s.ttl)
	if err := s.store.Set(ctx, session); err != nil {
		s.logger.Warn("failed to refresh sticky session",
			observability.String("key", key),
			observability.Error(err))
	}
	s.schedule(key, s.ttl)

	return session.Instance, true
}

// removeLocked deletes session and releases its instance. Must be called
// with the key lock held.
func (s *CookieStickySessions) removeLocked(ctx context.Context, session StickySession) {
	if err := s.store.Delete(ctx, session.Key); err != nil {
		s.logger.Warn("failed to delete sticky session",
			observability.String("key", session.Key),
			observability.Error(err))
	}
	s.unschedule(session.Key)
	s.inner.Release(session.Instance)

	s.logger.Debug("sticky session expired",
		observability.String("key", session.Key),
		observability.String("instance", session.Instance.String()))
}

// expire runs when a session timer fires. A session refreshed after the
// timer was armed is rescheduled for its remaining lifetime.
func (s *CookieStickySessions) expire(key string) {
	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	ctx := context.Background()
	session, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn("failed to read sticky session on expiry",
			observability.String("key", key),
			observability.Error(err))
		s.schedule(key, s.ttl)
		return
	}
	if !ok {
		s.unschedule(key)
		return
	}

	now := s.now()
	if session.Live(now) {
		s.schedule(key, session.Expiry.Sub(now))
		return
	}
	s.removeLocked(ctx, session)
}

// schedule arms or re-arms the expiry timer for key. It reports false
// once the balancer is closed.
func (s *CookieStickySessions) schedule(key string, d time.Duration) bool {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	if s.closed {
		return false
	}
	if t, ok := s.timers[key]; ok {
		t.Reset(d)
		return true
	}
	s.timers[key] = time.AfterFunc(d, func() { s.expire(key) })
	s.metrics.AddStickySessions(1)
	return true
}

func (s *CookieStickySessions) isClosed() bool {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	return s.closed
}

func (s *CookieStickySessions) unschedule(key string) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
		s.metrics.AddStickySessions(-1)
	}
}

func (s *CookieStickySessions) sessionKey(r *http.Request) string {
	if r == nil || s.cookie == "" {
		return ""
	}
	c, err := r.Cookie(s.cookie)
	if err != nil || c.Value == "" {
		return ""
	}
	if s.namespace == "" {
		return c.Value
	}
	return s.namespace + "|" + c.Value
}

func (s *CookieStickySessions) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.locks[h.Sum32()%stickyLockStripes]
}
