package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/driftware/workspace-mcp/internal/errdefs"
	"github.com/driftware/workspace-mcp/internal/logging"
)

// errBudgetExhausted signals that the total-timeout deadline fired while
// waiting between attempts.
var errBudgetExhausted = errors.New("retry budget exhausted")

// Executor runs operations with the retry policy of its Config. It is
// safe for concurrent use; all per-call state lives on the stack.
type Executor struct {
	cfg    Config
	clock  clockwork.Clock
	rand   func() float64
	logger *slog.Logger

	// onRetry, when set, is invoked before each backoff sleep.
	onRetry func(operation string, attempt int, delay time.Duration, err error)
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock substitutes the wall clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(e *Executor) { e.clock = c }
}

// WithLogger sets the logger used for attempt-level logging.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithRand substitutes the jitter source, for tests. The function must
// return values in [0,1).
func WithRand(r func() float64) Option {
	return func(e *Executor) { e.rand = r }
}

// WithOnRetry registers a hook invoked before each backoff sleep, used to
// record retry metrics.
func WithOnRetry(fn func(operation string, attempt int, delay time.Duration, err error)) Option {
	return func(e *Executor) { e.onRetry = fn }
}

// NewExecutor validates the config and builds an executor.
func NewExecutor(cfg Config, opts ...Option) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Executor{
		cfg:    cfg,
		clock:  clockwork.NewRealClock(),
		rand:   rand.Float64,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the executor's policy.
func (e *Executor) Config() Config { return e.cfg }

// Do runs fn under the retry policy. The operation name is used for
// logging and error attribution only.
func (e *Executor) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	_, err := DoValue(ctx, e, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue runs fn under the executor's retry policy and returns its
// value. fn must be idempotent or safely retriable; the executor assumes
// a retried invocation has no side effects beyond the first attempt.
//
// Each attempt runs under the per-request timeout composed with ctx; the
// whole loop, sleeps included, is bounded by the total timeout. On a
// terminal failure the last classified error is returned, never a
// synthetic exhaustion wrapper.
func DoValue[T any](ctx context.Context, e *Executor, operation string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, errdefs.Classify("", operation, err)
	}

	log := e.logger.With(
		logging.Operation(operation),
		logging.RequestID(uuid.NewString()),
	)

	start := e.clock.Now()
	var deadline time.Time
	if e.cfg.TotalTimeout > 0 {
		deadline = start.Add(e.cfg.TotalTimeout)
	}

	var lastErr errdefs.Error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		v, err := runAttempt(ctx, e, fn)
		if err == nil {
			if attempt > 1 {
				log.Info("operation succeeded after retry", logging.Attempt(attempt))
			}
			return v, nil
		}

		lastErr = e.classifyAttempt(operation, err)
		final := attempt == e.cfg.MaxAttempts

		if !e.shouldRetry(lastErr) {
			log.Error("operation failed, not retrying",
				logging.Attempt(attempt),
				slog.String("error_code", lastErr.ErrorCode()),
				logging.Err(lastErr))
			return zero, lastErr
		}
		if final {
			log.Error("operation failed, attempts exhausted",
				logging.Attempt(attempt),
				slog.String("error_code", lastErr.ErrorCode()),
				logging.Err(lastErr))
			return zero, lastErr
		}

		delay := e.nextDelay(attempt, lastErr)
		log.Warn("operation failed, retrying",
			logging.Attempt(attempt),
			logging.Delay(delay),
			slog.String("error_code", lastErr.ErrorCode()),
			logging.Err(lastErr))
		if e.onRetry != nil {
			e.onRetry(operation, attempt, delay, lastErr)
		}

		if err := e.sleep(ctx, delay, deadline); err != nil {
			if errors.Is(err, errBudgetExhausted) {
				return zero, &errdefs.TimeoutError{
					Phase:             errdefs.TimeoutPhaseTotal,
					Operation:         operation,
					Limit:             e.cfg.TotalTimeout,
					Elapsed:           e.clock.Since(start),
					CompletedAttempts: attempt,
				}
			}
			return zero, errdefs.Classify("", operation, err)
		}
	}

	return zero, lastErr
}

// runAttempt executes one invocation under the per-request timeout.
func runAttempt[T any](ctx context.Context, e *Executor, fn func(context.Context) (T, error)) (T, error) {
	if e.cfg.RequestTimeout > 0 {
		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
		defer cancel()
		return fn(attemptCtx)
	}
	return fn(ctx)
}

// classifyAttempt normalizes a raw attempt failure, filling in the
// request-timeout limit when the attempt's own deadline fired.
func (e *Executor) classifyAttempt(operation string, err error) errdefs.Error {
	classified := errdefs.Classify("", operation, err)
	var terr *errdefs.TimeoutError
	if errors.As(classified, &terr) && terr.Phase == errdefs.TimeoutPhaseRequest && terr.Limit == 0 {
		terr.Limit = e.cfg.RequestTimeout
	}
	return classified
}

// shouldRetry applies the classification priority: explicit terminal
// classes stop immediately; a status in the configured set retries; 429
// always retries; other 4xx stop; everything else defers to the typed
// error's own verdict.
func (e *Executor) shouldRetry(err errdefs.Error) bool {
	var aerr *errdefs.AuthError
	if errors.As(err, &aerr) {
		return aerr.IsRetryable()
	}
	var cerr *errdefs.CorruptionError
	if errors.As(err, &cerr) {
		return false
	}

	if status, ok := errdefs.StatusCode(err); ok {
		if e.cfg.RetriableCodes[status] {
			return true
		}
		if status == 429 {
			return true
		}
		if status >= 400 && status < 500 {
			return false
		}
	}

	return err.IsRetryable()
}

// nextDelay computes the backoff before attempt n+1. A server-specified
// Retry-After is used verbatim, uncapped. Jitter only widens the delay.
func (e *Executor) nextDelay(attempt int, err errdefs.Error) time.Duration {
	if after, ok := errdefs.RetryAfterHint(err); ok {
		return after
	}
	d := float64(e.cfg.BaseDelay) * math.Pow(e.cfg.Multiplier, float64(attempt-1))
	if d > float64(e.cfg.MaxDelay) {
		d = float64(e.cfg.MaxDelay)
	}
	d += d * e.cfg.Jitter * e.rand()
	return time.Duration(d)
}

// sleep waits for the backoff delay, aborting early if the caller's
// context is canceled or the total-timeout deadline fires.
func (e *Executor) sleep(ctx context.Context, d time.Duration, deadline time.Time) error {
	var budget <-chan time.Time
	if !deadline.IsZero() {
		remaining := deadline.Sub(e.clock.Now())
		if remaining <= 0 {
			return errBudgetExhausted
		}
		if remaining < d {
			budget = e.clock.After(remaining)
		}
	}

	select {
	case <-e.clock.After(d):
		return nil
	case <-budget:
		return errBudgetExhausted
	case <-ctx.Done():
		return ctx.Err()
	}
}
