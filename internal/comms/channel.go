// Package comms is the communications core (spec.md §4.3): connection
// pooling, rate limiting, circuit breaking, retry, metrics, and a pub/sub
// bus for observing traffic, all wrapped around a pluggable upstream
// Provider per model endpoint.
package comms

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fleetforge/conductor/internal/ratelimit"
	"github.com/fleetforge/conductor/internal/retry"
	"github.com/fleetforge/conductor/pkg/model"
)

type correlationKey struct{}

// WithCorrelationID attaches a correlation ID to ctx. Each receive() call
// gets its own ID scoped to that call's context, not a shared global, so
// concurrent agent instances never cross-contaminate trace files.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the correlation ID attached to ctx, if any.
func CorrelationID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationKey{}).(string)
	return id, ok
}

// Channel is a live (non-replay) communications path to one model
// endpoint.
type Channel struct {
	endpoint model.ModelEndpoint
	provider Provider
	limiter  *ratelimit.Bucket
	breaker  *CircuitBreaker
	metrics  *Metrics
	retry    retry.Config
	bus      *Bus
}

// Config configures a Channel's resilience policies.
type Config struct {
	RequestsPerSecond float64
	BurstSize         int
	Retry             retry.Config
	Breaker           CircuitBreakerConfig
}

// DefaultConfig returns conservative defaults for a single model endpoint.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 4,
		BurstSize:         8,
		Retry:             retry.DefaultConfig(),
		Breaker:           CircuitBreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, Timeout: 30 * time.Second},
	}
}

// NewChannel builds a Channel for endpoint, resolving its Provider field to
// a concrete backend (native SDK, or the generic HTTP fallback).
func NewChannel(endpoint model.ModelEndpoint, pool *Pool, cfg Config, bus *Bus) *Channel {
	cfg.Breaker.Name = endpoint.URL
	return &Channel{
		endpoint: endpoint,
		provider: ResolveProvider(endpoint, pool),
		limiter:  ratelimit.NewBucket(ratelimit.Config{RequestsPerSecond: cfg.RequestsPerSecond, BurstSize: cfg.BurstSize, Enabled: true}),
		breaker:  NewCircuitBreaker(cfg.Breaker),
		metrics:  NewMetrics(endpoint.URL),
		retry:    cfg.Retry,
		bus:      bus,
	}
}

// Send issues one request, waiting on the rate limiter, running it through
// the circuit breaker and retry policy, and recording metrics. A fresh
// correlation ID is minted per call and attached to ctx for the caller to
// use when persisting the trace pair.
func (c *Channel) Send(ctx context.Context, req Request) (context.Context, Response, error) {
	id := uuid.NewString()
	ctx = WithCorrelationID(ctx, id)

	if err := c.limiter.Acquire(ctx, 1); err != nil {
		return ctx, Response{}, &model.CommunicationError{Endpoint: c.endpoint.URL, Err: err}
	}

	start := time.Now()
	resp, result := retry.DoWithValue(ctx, c.retry, func() (Response, error) {
		resp, err := ExecuteWithResult(c.breaker, func() (Response, error) {
			return c.provider.Complete(ctx, req)
		})
		return resp, retry.ClassifyForDispatch(err)
	})
	elapsed := time.Since(start)
	c.metrics.Observe(elapsed, result.Err)

	if c.bus != nil {
		c.bus.Publish(Traffic{CorrelationID: id, Request: req, Response: resp, Err: result.Err, At: start})
	}

	if result.Err != nil {
		return ctx, Response{}, &model.CommunicationError{Endpoint: c.endpoint.URL, Err: result.Err}
	}
	return ctx, resp, nil
}

// Snapshot exposes this channel's latency/error summary.
func (c *Channel) Snapshot() Snapshot { return c.metrics.Snapshot() }

// CircuitState exposes this channel's breaker state.
func (c *Channel) CircuitState() CircuitState { return c.breaker.State() }
