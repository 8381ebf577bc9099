package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Pinger is a dependency that can verify its connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckFunc adapts a function to a Check.
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewCheck creates a check named name.
func NewCheck(name string, fn func(ctx context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

// Name returns the check name.
func (f *CheckFunc) Name() string {
	return f.name
}

// Check runs the check.
func (f *CheckFunc) Check(ctx context.Context) error {
	return f.fn(ctx)
}

// PingCheck checks a dependency such as the sticky session store or the
// discovery agent.
func PingCheck(name string, p Pinger) *CheckFunc {
	return NewCheck(name, func(ctx context.Context) error {
		if p == nil {
			return fmt.Errorf("%s: not configured", name)
		}
		return p.Ping(ctx)
	})
}

// CachedCheck remembers the result of a check for ttl so frequent probes do
// not hammer a dependency.
type CachedCheck struct {
	check Check
	ttl   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	lastErr   error
	checkedAt time.Time
}

// NewCachedCheck wraps check with a result cache.
func NewCachedCheck(check Check, ttl time.Duration) *CachedCheck {
	return &CachedCheck{check: check, ttl: ttl, now: time.Now}
}

// Name returns the wrapped check's name.
func (c *CachedCheck) Name() string {
	return c.check.Name()
}

// Check returns the cached result or runs the wrapped check.
func (c *CachedCheck) Check(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.checkedAt.IsZero() && c.now().Sub(c.checkedAt) < c.ttl {
		return c.lastErr
	}
	c.lastErr = c.check.Check(ctx)
	c.checkedAt = c.now()
	return c.lastErr
}
