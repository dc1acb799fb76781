package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/use-agent/hnpulse/metrics"
	"github.com/use-agent/hnpulse/models"
)

// Policy bounds one step: a per-attempt time budget plus capped exponential
// backoff across a fixed number of attempts.
type Policy struct {
	Timeout         time.Duration
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// runStep executes fn as a named, retryable step. Each attempt runs under its
// own deadline. Non-retryable errors short-circuit the backoff immediately;
// retryable ones are retried until the attempt budget is exhausted, at which
// point the last error is returned.
func runStep[T any](ctx context.Context, name string, pol Policy, fn func(context.Context) (T, error)) (T, error) {
	var result T

	attempt := 0
	op := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, pol.Timeout)
		defer cancel()

		start := time.Now()
		v, err := fn(attemptCtx)
		metrics.StepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

		if err != nil {
			if !models.IsRetryable(err) {
				metrics.StepAttemptsTotal.WithLabelValues(name, "permanent").Inc()
				slog.Error("step failed permanently",
					"step", name, "attempt", attempt, "error", err)
				return backoff.Permanent(err)
			}
			metrics.StepAttemptsTotal.WithLabelValues(name, "retryable").Inc()
			slog.Warn("step attempt failed",
				"step", name, "attempt", attempt, "maxAttempts", pol.MaxAttempts, "error", err)
			return err
		}

		metrics.StepAttemptsTotal.WithLabelValues(name, "ok").Inc()
		result = v
		return nil
	}

	maxAttempts := pol.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = pol.InitialInterval
	bo.MaxInterval = pol.MaxInterval
	bo.MaxElapsedTime = 0 // attempts bound the retry loop, not wall time

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, maxAttempts-1), ctx))
	if err != nil {
		return result, err
	}
	return result, nil
}
