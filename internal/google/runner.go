package google

import (
	"context"

	"github.com/driftware/workspace-mcp/internal/errdefs"
	"github.com/driftware/workspace-mcp/internal/retry"
)

// Runner composes per-service rate limiting with the shared retry
// executor. Every service client routes its API calls through one of
// these so resilience semantics are identical across services.
type Runner struct {
	service  string
	executor *retry.Executor
	limiter  *RateLimiter
}

// NewRunner builds a runner for one service. The limiter may be nil to
// disable throttling.
func NewRunner(service string, executor *retry.Executor, limiter *RateLimiter) *Runner {
	return &Runner{service: service, executor: executor, limiter: limiter}
}

// Service returns the service name used for error attribution.
func (r *Runner) Service() string { return r.service }

// Execute runs fn under rate limiting and the retry policy, returning a
// taxonomy error on failure.
func (r *Runner) Execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	_, err := ExecuteValue(ctx, r, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecuteValue runs fn under rate limiting and the retry policy. Each
// attempt re-acquires an admission, and a rate-limit response pushes the
// next admission out by the server's Retry-After.
func ExecuteValue[T any](ctx context.Context, r *Runner, operation string, fn func(context.Context) (T, error)) (T, error) {
	return retry.DoValue(ctx, r.executor, r.service+"."+operation, func(ctx context.Context) (T, error) {
		var zero T
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return zero, err
			}
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}

		classified := errdefs.Classify(r.service, operation, err)
		r.noteRateLimit(classified)
		return zero, classified
	})
}

// OnceValue runs fn a single time under rate limiting, classifying any
// failure but never retrying. It exists for streaming responses, where
// the per-attempt deadline would cancel an in-flight body, and for
// non-idempotent calls where a retry could duplicate work.
func OnceValue[T any](ctx context.Context, r *Runner, operation string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return zero, err
		}
	}

	v, err := fn(ctx)
	if err == nil {
		return v, nil
	}

	classified := errdefs.Classify(r.service, operation, err)
	r.noteRateLimit(classified)
	return zero, classified
}

// noteRateLimit feeds a server-specified Retry-After into the limiter
// so subsequent admissions are held back.
func (r *Runner) noteRateLimit(err error) {
	if r.limiter == nil {
		return
	}
	if status, ok := errdefs.StatusCode(err); ok && status == 429 {
		if after, ok := errdefs.RetryAfterHint(err); ok {
			r.limiter.Backoff(after)
		}
	}
}
