// Package health provides liveness and readiness endpoints for the gateway.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/routegw/internal/observability"
)

// DefaultReadinessTimeout bounds a readiness probe.
const DefaultReadinessTimeout = 5 * time.Second

// Status represents the health status.
type Status string

const (
	// StatusHealthy indicates the gateway is healthy.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates a dependency check failed.
	StatusUnhealthy Status = "unhealthy"
)

// Response is the body of a health or readiness probe.
type Response struct {
	Status    Status                  `json:"status"`
	Version   string                  `json:"version,omitempty"`
	Uptime    string                  `json:"uptime,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
	Details   map[string]any          `json:"details,omitempty"`
	Checks    map[string]*CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Check is a named readiness check.
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

// DetailsFunc reports extra fields for the liveness response.
type DetailsFunc func() map[string]any

// Handler serves health endpoints.
type Handler struct {
	version   string
	startTime time.Time
	timeout   time.Duration
	logger    observability.Logger
	details   DetailsFunc

	mu     sync.RWMutex
	checks []Check
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithVersion sets the version reported by probes.
func WithVersion(version string) Option {
	return func(h *Handler) {
		h.version = version
	}
}

// WithTimeout bounds the readiness probe.
func WithTimeout(timeout time.Duration) Option {
	return func(h *Handler) {
		h.timeout = timeout
	}
}

// WithDetails adds fields to the liveness response.
func WithDetails(fn DetailsFunc) Option {
	return func(h *Handler) {
		h.details = fn
	}
}

// NewHandler creates a health handler.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		startTime: time.Now(),
		timeout:   DefaultReadinessTimeout,
		logger:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddCheck registers a readiness check.
func (h *Handler) AddCheck(check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// LivenessHandler reports that the process is serving.
func (h *Handler) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := Response{
			Status:    StatusHealthy,
			Version:   h.version,
			Uptime:    time.Since(h.startTime).Round(time.Second).String(),
			Timestamp: time.Now().UTC(),
		}
		if h.details != nil {
			resp.Details = h.details()
		}
		c.JSON(http.StatusOK, resp)
	}
}

// ReadinessHandler runs every check and answers 503 when any fails.
func (h *Handler) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		defer cancel()

		resp := h.runChecks(ctx)
		status := http.StatusOK
		if resp.Status != StatusHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, resp)
	}
}

func (h *Handler) runChecks(ctx context.Context) *Response {
	h.mu.RLock()
	checks := make([]Check, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	resp := &Response{
		Status:    StatusHealthy,
		Version:   h.version,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]*CheckResult, len(checks)),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, check := range checks {
		wg.Add(1)
		go func(c Check) {
			defer wg.Done()

			start := time.Now()
			err := c.Check(ctx)
			duration := time.Since(start)

			result := &CheckResult{Status: StatusHealthy, Duration: duration.String()}
			if err != nil {
				result.Status = StatusUnhealthy
				result.Error = err.Error()
				h.logger.Warn("health check failed",
					observability.String("check", c.Name()),
					observability.Duration("duration", duration),
					observability.Error(err),
				)
			}

			mu.Lock()
			defer mu.Unlock()
			resp.Checks[c.Name()] = result
			if err != nil {
				resp.Status = StatusUnhealthy
			}
		}(check)
	}
	wg.Wait()

	return resp
}
