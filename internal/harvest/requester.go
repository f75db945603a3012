package harvest

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-harvest/internal/metrics"
	"github.com/sells-group/lead-harvest/internal/ratelimit"
	"github.com/sells-group/lead-harvest/internal/resilience"
)

// Endpoint labels for logs and metrics.
const (
	EndpointSearch  = "search"
	EndpointDetails = "details"
)

// DefaultCallTimeout bounds a single upstream attempt.
const DefaultCallTimeout = 10 * time.Second

// Requester runs every upstream call through the rate limiter, a per-call
// timeout and the shared retry policy.
type Requester struct {
	limiter ratelimit.Limiter
	retry   resilience.RetryConfig
	timeout time.Duration
	metrics *metrics.Metrics
}

// RequesterOption configures a Requester.
type RequesterOption func(*Requester)

// WithCallTimeout overrides the per-attempt timeout.
func WithCallTimeout(d time.Duration) RequesterOption {
	return func(r *Requester) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMetrics records attempts and retries in m.
func WithMetrics(m *metrics.Metrics) RequesterOption {
	return func(r *Requester) {
		r.metrics = m
	}
}

// NewRequester creates a Requester. A nil limiter admits every call.
func NewRequester(limiter ratelimit.Limiter, retry resilience.RetryConfig, opts ...RequesterOption) *Requester {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	r := &Requester{
		limiter: limiter,
		retry:   retry,
		timeout: DefaultCallTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Do runs fn with retries. Each attempt acquires the rate limiter first and
// gets its own timeout; an attempt that runs out of time while ctx is still
// live counts as a transient failure.
func (r *Requester) Do(ctx context.Context, endpoint string, fn func(ctx context.Context) error) error {
	cfg := r.retry
	logRetry := resilience.RetryLogger("google", endpoint)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		r.metrics.ObserveRetry(endpoint, resilience.Cause(err))
		logRetry(attempt, err, delay)
	}

	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		if err := r.limiter.Acquire(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		err := fn(callCtx)
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !resilience.IsRetryable(err) {
			err = resilience.NewTransientError(eris.Wrapf(err, "harvest: %s call timed out after %s", endpoint, r.timeout), 0)
		}
		r.metrics.ObserveRequest(endpoint, outcomeLabel(err))
		return err
	})
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return resilience.Cause(err)
}
