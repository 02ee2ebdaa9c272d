package resilience

import (
	"context"
	goerrors "errors"
	"strings"
	"time"

	apperrors "github.com/sns45/anyq/pkg/errors"
)

// Retry runs fn, retrying on failure per cfg, until it succeeds, a
// non-retryable error is returned, the attempt budget is exhausted, or ctx
// is canceled. Total attempts made is cfg.MaxRetries+1.
func Retry(ctx context.Context, cfg RetryConfig, fn Executor) error {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	maxAttempts := maxRetries + 1
	retryable := retryPredicate(cfg)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return apperrors.CanceledError(err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !retryable(lastErr) {
			return lastErr
		}

		if attempt == maxAttempts {
			break
		}

		nextAttempt := attempt + 1
		delay := computeBackoff(attempt, cfg)

		if cfg.OnRetry != nil {
			cfg.OnRetry(nextAttempt, maxAttempts, delay, lastErr)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return apperrors.CanceledError(ctx.Err())
		case <-timer.C:
		}
	}

	return lastErr
}

// retryPredicate resolves the effective retryability function for cfg:
// RetryIf takes priority, then RetryableErrors as a substring allow-list,
// then the taxonomy's own Retryable flag, and for any other error the
// built-in transient-pattern heuristic (isTransient).
func retryPredicate(cfg RetryConfig) func(error) bool {
	if cfg.RetryIf != nil {
		return cfg.RetryIf
	}
	if len(cfg.RetryableErrors) > 0 {
		patterns := cfg.RetryableErrors
		return func(err error) bool {
			msg := strings.ToLower(err.Error())
			for _, p := range patterns {
				if strings.Contains(msg, strings.ToLower(p)) {
					return true
				}
			}
			return false
		}
	}
	return func(err error) bool {
		if err == nil {
			return false
		}
		var ae *apperrors.AppError
		if goerrors.As(err, &ae) {
			return ae.Retryable
		}
		return isTransient(err)
	}
}

// transientPatterns are substrings of the built-in heuristic for
// classifying a plain (non-AppError) error as transient-and-retryable:
// connection-refused/reset, timeouts, DNS lookup failures, a dropped
// socket, and rate-limit/throttle/503-class responses.
var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"econnreset",
	"broken pipe",
	"timeout",
	"timed out",
	"i/o timeout",
	"no such host",
	"dns",
	"socket hang up",
	"eof",
	"rate limit",
	"too many requests",
	"429",
	"throttl",
	"service unavailable",
	"503",
}

// isTransient is the default fallback predicate for an error that is
// neither an *apperrors.AppError nor matched by an explicit RetryIf/
// RetryableErrors configuration.
func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// RetryWithCircuitBreaker composes a circuit breaker around each attempt so
// that an open circuit short-circuits the retry loop instead of being
// retried against a known-failing dependency.
func RetryWithCircuitBreaker(ctx context.Context, cb *CircuitBreaker, retryCfg RetryConfig, fn Executor) error {
	return Retry(ctx, retryCfg, func(ctx context.Context) error {
		return cb.Execute(ctx, fn)
	})
}

// WithTimeout wraps fn so each attempt runs under its own bounded deadline.
func WithTimeout(timeout time.Duration, fn Executor) Executor {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fn(ctx)
	}
}
