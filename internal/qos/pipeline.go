package qos

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/routegw/internal/observability"
	"github.com/vyrodovalexey/routegw/internal/route"
	"github.com/vyrodovalexey/routegw/internal/util"
)

// Breaker tuning.
const (
	FailureRatio     = 0.8
	SamplingInterval = 10 * time.Second
	DefaultBreak     = 5 * time.Second
)

// SendFunc performs one downstream call.
type SendFunc func(ctx context.Context) (*http.Response, error)

// Pipeline wraps downstream calls of one route. A nil Pipeline passes calls
// straight through.
type Pipeline struct {
	route   string
	breaker *gobreaker.TwoStepCircuitBreaker
	timeout time.Duration
	logger  observability.Logger
	metrics *observability.Metrics

	// lastFault describes the failure that last counted against the
	// breaker, reported when it opens.
	lastFault atomic.Pointer[string]
}

func newPipeline(def *route.Definition, logger observability.Logger, metrics *observability.Metrics) *Pipeline {
	p := &Pipeline{
		route:   def.Key(),
		logger:  logger,
		metrics: metrics,
	}

	if def.QoS.HasTimeout() {
		p.timeout = def.QoS.Timeout
	}

	if def.QoS.HasBreaker() {
		p.breaker = gobreaker.NewTwoStepCircuitBreaker(p.breakerSettings(def.QoS))
	}

	return p
}

func (p *Pipeline) breakerSettings(opts route.QoSOptions) gobreaker.Settings {
	threshold := safeIntToUint32(opts.ExceptionsAllowedBeforeBreaking)
	breakFor := opts.DurationOfBreak
	if breakFor <= 0 {
		breakFor = DefaultBreak
	}

	return gobreaker.Settings{
		Name:        p.route,
		MaxRequests: 1,
		Interval:    SamplingInterval,
		Timeout:     breakFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < threshold {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= FailureRatio
		},
		OnStateChange: func(name string, _ gobreaker.State, to gobreaker.State) {
			switch to {
			case gobreaker.StateOpen:
				fault := "unknown"
				if f := p.lastFault.Load(); f != nil {
					fault = *f
				}
				p.logger.Error(fmt.Sprintf("Circuit Breaker for Route: %s: Breaking for %d ms",
					name, breakFor.Milliseconds()),
					observability.String("fault", fault))
			case gobreaker.StateHalfOpen:
				p.logger.Info(fmt.Sprintf("Circuit Breaker for Route: %s: Half-open; Next call is a trial.", name))
			case gobreaker.StateClosed:
				p.logger.Info(fmt.Sprintf("Circuit Breaker for Route: %s: Closed", name))
			}
			p.metrics.SetCircuitBreakerState(name, stateValue(to), to.String())
		},
	}
}

// Route returns the key of the route the pipeline serves.
func (p *Pipeline) Route() string {
	if p == nil {
		return ""
	}
	return p.route
}

// HasBreaker reports whether the pipeline includes a circuit breaker.
func (p *Pipeline) HasBreaker() bool {
	return p != nil && p.breaker != nil
}

// Timeout returns the pipeline timeout; zero means none.
func (p *Pipeline) Timeout() time.Duration {
	if p == nil {
		return 0
	}
	return p.timeout
}

// State returns the breaker state, or "closed" without a breaker.
func (p *Pipeline) State() string {
	if !p.HasBreaker() {
		return gobreaker.StateClosed.String()
	}
	return p.breaker.State().String()
}

// Execute runs send through the breaker and timeout. An open breaker fails
// fast with *util.CircuitOpenError; an expired timeout fails with
// *util.TimeoutError. Only timeouts and 500-508 responses count as breaker
// failures.
func (p *Pipeline) Execute(ctx context.Context, send SendFunc) (*http.Response, error) {
	if p == nil {
		return send(ctx)
	}
	if p.breaker == nil {
		return p.executeTimeout(ctx, send)
	}

	done, err := p.breaker.Allow()
	if err != nil {
		return nil, util.NewCircuitOpenError(p.route, p.breaker.State().String())
	}

	resp, err := p.executeTimeout(ctx, send)
	if fault, failed := breakerFault(resp, err); failed {
		p.lastFault.Store(&fault)
		done(false)
	} else {
		done(true)
	}
	return resp, err
}

func (p *Pipeline) executeTimeout(ctx context.Context, send SendFunc) (*http.Response, error) {
	if p.timeout <= 0 {
		return send(ctx)
	}

	tctx, cancel := context.WithTimeoutCause(ctx, p.timeout,
		util.NewTimeoutError(p.route, util.TimeoutLimitQoS, p.timeout))

	resp, err := send(tctx)
	if err != nil {
		cancel()
		if ctx.Err() == nil {
			if te, ok := util.AsTimeout(context.Cause(tctx)); ok {
				p.logger.Info(fmt.Sprintf("Timeout for Route: %s", p.route),
					observability.Duration("timeout", p.timeout))
				p.metrics.RecordTimeout(p.route, te.Limit)
				return nil, te
			}
		}
		return nil, err
	}

	resp.Body = util.CancelOnClose(resp.Body, cancel)
	return resp, nil
}

// breakerFault reports whether a call outcome counts against the breaker.
func breakerFault(resp *http.Response, err error) (string, bool) {
	if err != nil {
		if te, ok := util.AsTimeout(err); ok {
			return te.Error(), true
		}
		return "", false
	}
	if resp != nil && resp.StatusCode >= http.StatusInternalServerError &&
		resp.StatusCode <= http.StatusLoopDetected {
		return fmt.Sprintf("downstream responded %d", resp.StatusCode), true
	}
	return "", false
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateOpen:
		return observability.CircuitStateOpen
	case gobreaker.StateHalfOpen:
		return observability.CircuitStateHalfOpen
	default:
		return observability.CircuitStateClosed
	}
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}
